// Package prompt asks the user for a parameter value on the terminal.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// ErrCancelled is returned when the user leaves the prompt without a value.
var ErrCancelled = errors.New("prompt: cancelled")

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

// Model is the bubbletea model for a single parameter prompt. The entered
// text is parsed as YAML, so `42`, `true` and `[a, b]` keep their types.
type Model struct {
	path      string
	input     textinput.Model
	value     any
	err       error
	done      bool
	cancelled bool
}

// New returns a focused prompt for the parameter at path.
func New(path string) Model {
	input := textinput.New()
	input.Placeholder = "value (YAML)"
	input.Prompt = "> "
	input.Focus()
	return Model{path: path, input: input}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		case tea.KeyEnter:
			value, err := parse(m.input.Value())
			if err != nil {
				m.err = err
				return m, nil
			}
			m.value, m.err, m.done = value, nil, true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.done || m.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Parameter %s is not set", m.path)))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(hintStyle.Render("enter to accept · esc to cancel"))
	b.WriteString("\n")
	return b.String()
}

// Value returns the accepted value. ok is false until the user confirms.
func (m Model) Value() (any, bool) {
	return m.value, m.done
}

// Ask runs the prompt on in/out and returns the parsed value.
func Ask(ctx context.Context, in io.Reader, out io.Writer, path string) (any, error) {
	program := tea.NewProgram(New(path),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	final, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return nil, fmt.Errorf("prompt: unexpected model %T", final)
	}
	value, done := m.Value()
	if !done {
		return nil, ErrCancelled
	}
	return value, nil
}

func parse(text string) (any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("a value is required")
	}
	var value any
	if err := yaml.Unmarshal([]byte(text), &value); err != nil {
		return nil, fmt.Errorf("not valid YAML: %w", err)
	}
	return value, nil
}

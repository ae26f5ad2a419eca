package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/minion/internal/config"
	"github.com/kingrea/minion/internal/registry"
	"github.com/kingrea/minion/internal/resolver"
)

const printJob = `description: Print two greetings
spec: !function:pretty_print
  items: !function:values
    items:
      - hello
      - !param name
`

const brokenJob = `spec:
  session: !provider:jira
  items: !function:jira.issues
    session: !provider-ref:jira
`

func newFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

type result struct {
	out    string
	errOut string
	err    error
}

func execute(fs afero.Fs, ask AskFunc, args ...string) result {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCmd(Options{Fs: fs, In: strings.NewReader(""), Out: out, Err: errOut, Ask: ask})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return result{out: out.String(), errOut: errOut.String(), err: err}
}

func TestRunDrainsJob(t *testing.T) {
	fs := newFs(t, map[string]string{
		"/jobs/greet.yaml":  printJob,
		"/jobs/params.yaml": "name: world\n",
	})
	res := execute(fs, nil, "run", "/jobs/greet.yaml", "-p", "/jobs/params.yaml")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "---\nhello\n---\nworld\n")
	assert.Contains(t, res.out, "greet: 2 item(s) processed")
	assert.Contains(t, res.errOut, "job=greet")
}

func TestRunMissingParameter(t *testing.T) {
	fs := newFs(t, map[string]string{"/greet.yaml": printJob})
	res := execute(fs, nil, "run", "/greet.yaml")
	require.Error(t, res.err)
	var missing *resolver.ParameterMissingError
	require.True(t, errors.As(res.err, &missing), "got %v", res.err)
	assert.Equal(t, "name", missing.Parameter)
	assert.NotContains(t, res.out, "hello", "nothing runs before resolution succeeds")
}

func TestRunPromptsForMissingParameter(t *testing.T) {
	fs := newFs(t, map[string]string{"/greet.yaml": printJob})
	var asked []string
	ask := func(_ context.Context, path string) (any, error) {
		asked = append(asked, path)
		return "prompted", nil
	}
	res := execute(fs, ask, "run", "/greet.yaml", "--prompt")
	require.NoError(t, res.err)
	assert.Equal(t, []string{"name"}, asked)
	assert.Contains(t, res.out, "---\nprompted\n")

	failing := func(context.Context, string) (any, error) { return nil, errors.New("stdin is not a terminal") }
	res = execute(fs, failing, "run", "/greet.yaml", "--prompt")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "stdin is not a terminal")
}

func TestRunPrintsPlainValue(t *testing.T) {
	fs := newFs(t, map[string]string{"/plain.yaml": "spec:\n  board: !param { path: board, default: Work }\n"})
	res := execute(fs, nil, "run", "/plain.yaml")
	require.NoError(t, res.err)
	assert.Equal(t, "board: Work\n", res.out)
}

func TestCheckPrintsTreeAndUnknownNames(t *testing.T) {
	fs := newFs(t, map[string]string{
		"/greet.yaml":  printJob,
		"/broken.yaml": brokenJob,
	})
	res := execute(fs, nil, "check", "/greet.yaml")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "greet")
	assert.Contains(t, res.out, "[function:pretty_print]  spec")
	assert.Contains(t, res.out, "[param]  [1] <- name")

	res = execute(fs, nil, "check", "/broken.yaml")
	require.Error(t, res.err)
	assert.Equal(t, "broken: unknown function jira.issues, provider jira", res.err.Error())
	assert.Contains(t, res.out, "[provider-ref:jira]  session")
}

func TestListings(t *testing.T) {
	fs := afero.NewMemMapFs()
	res := execute(fs, nil, "functions")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "FUNCTION")
	assert.Contains(t, res.out, "trello.create_card")

	res = execute(fs, nil, "providers")
	require.NoError(t, res.err)
	for _, provider := range []string{"github", "gitlab", "helpscout", "kantree", "trello"} {
		assert.Contains(t, res.out, provider)
	}

	res = execute(fs, nil, "version")
	require.NoError(t, res.err)
	assert.Equal(t, "minion version "+Version+"\n", res.out)
}

func TestGlobalFlagsAreValidated(t *testing.T) {
	res := execute(afero.NewMemMapFs(), nil, "version", "--log-level", "loud")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "log level")
}

func TestExecuteReportsErrors(t *testing.T) {
	errOut := &bytes.Buffer{}
	code := Execute(context.Background(), []string{"run", "/missing.yaml"}, Options{
		Fs:  afero.NewMemMapFs(),
		Out: &bytes.Buffer{},
		Err: errOut,
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "Error: job: read /missing.yaml")

	code = Execute(context.Background(), []string{"version"}, Options{Out: &bytes.Buffer{}, Err: errOut})
	assert.Equal(t, 0, code)
}

func TestRunFindsJobByName(t *testing.T) {
	fs := newFs(t, map[string]string{
		"/home/jobs/plain.yaml": "spec: home\n",
		"/site/jobs/plain.yml":  "spec: site\n",
		"/site/jobs/other.yml":  "description: Only here\nspec: other\n",
	})
	res := execute(fs, nil, "run", "plain", "--jobs-dir", "/home/jobs", "--jobs-dir", "/site/jobs")
	require.NoError(t, res.err)
	assert.Equal(t, "home\n", res.out)

	res = execute(fs, nil, "run", "other", "--jobs-dir", "/home/jobs,/site/jobs")
	require.NoError(t, res.err)
	assert.Equal(t, "other\n", res.out)

	res = execute(fs, nil, "check", "missing", "--jobs-dir", "/home/jobs")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), `could not find job "missing" in /home/jobs`)
}

func TestRunMergesParameterSources(t *testing.T) {
	fs := newFs(t, map[string]string{
		"/board.yaml": "spec: !param trello\n",
		"/a.yaml":     "trello: {board: Work, labels: [bug]}\n",
		"/b.yaml":     "trello: {labels: [urgent]}\n",
	})
	res := execute(fs, nil, "run", "/board.yaml", "-p", "/a.yaml", "-p", "/b.yaml", "--values", "{trello: {board: Home}}")
	require.NoError(t, res.err)
	assert.Equal(t, "board: Home\nlabels:\n    - bug\n    - urgent\n", res.out)
}

func TestJobsListing(t *testing.T) {
	t.Setenv(config.EnvJobsPath, "")
	fs := newFs(t, map[string]string{
		"/jobs/greet.yaml":  printJob,
		"/jobs/broken.yaml": "spec: [\n",
		"/jobs/notes.txt":   "ignored",
	})
	res := execute(fs, nil, "jobs", "--jobs-dir", "/jobs", "-q")
	require.NoError(t, res.err)
	assert.Equal(t, "broken\ngreet\n", res.out)

	res = execute(fs, nil, "jobs", "--jobs-dir", "/jobs")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "JOB")
	assert.Contains(t, res.out, "Print two greetings")
	assert.Contains(t, res.out, "invalid:")

	res = execute(fs, nil, "jobs")
	require.NoError(t, res.err)
	assert.Equal(t, "no jobs available\n", res.out)
}

func TestLogbookRecordsRuns(t *testing.T) {
	t.Setenv(config.EnvLogbook, "")
	fs := newFs(t, map[string]string{
		"/greet.yaml":  printJob,
		"/params.yaml": "name: world\n",
	})
	res := execute(fs, nil, "logbook")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "no logbook configured")

	res = execute(fs, nil, "logbook", "--logbook", "/var/minion/runs.log")
	require.NoError(t, res.err)
	assert.Equal(t, "no runs recorded\n", res.out)

	res = execute(fs, nil, "run", "/greet.yaml", "-p", "/params.yaml", "--logbook", "/var/minion/runs.log")
	require.NoError(t, res.err)
	res = execute(fs, nil, "run", "/greet.yaml", "--logbook", "/var/minion/runs.log")
	require.Error(t, res.err)

	res = execute(fs, nil, "logbook", "--logbook", "/var/minion/runs.log", "-n", "1")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "ERROR job greet failed:")
	assert.NotContains(t, res.out, "item(s) processed")
	assert.Contains(t, res.out, "(1 of 2 entries)")

	res = execute(fs, nil, "logbook", "--logbook", "/var/minion/runs.log")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "INFO  job greet: 2 item(s) processed")
}

func TestRunDrainsMappingSpec(t *testing.T) {
	t.Setenv(config.EnvLogbook, "")
	fs := newFs(t, map[string]string{
		"/stages.yaml": "spec:\n  board: Work\n  cards: !function:pretty_print {items: [a, b]}\n",
	})
	res := execute(fs, nil, "run", "/stages.yaml", "--logbook", "/runs.log")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "---\na\n---\nb\n")
	assert.Contains(t, res.out, "stages: 2 item(s) processed")
	assert.NotContains(t, res.out, "board: Work")

	res = execute(fs, nil, "logbook", "--logbook", "/runs.log")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "INFO  job stages: 2 item(s) processed")
}

func TestRunRejectsUnprintableValue(t *testing.T) {
	fs := newFs(t, map[string]string{"/conn.yaml": "spec:\n  client: !provider:funcs\n"})
	cat := registry.NewCatalog()
	cat.MustRegisterProvider("funcs", "", func(context.Context, registry.Kwargs) (any, error) {
		return map[string]any{"call": func() {}}, nil
	})
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCmd(Options{Fs: fs, In: strings.NewReader(""), Out: out, Err: errOut, Catalog: cat})
	cmd.SetArgs([]string{"run", "/conn.yaml"})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode result")
}

func TestRunReadsJobFromStdin(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := NewRootCmd(Options{
		Fs:  afero.NewMemMapFs(),
		In:  strings.NewReader("spec: !param {path: board, default: Work}\n"),
		Out: out,
		Err: &bytes.Buffer{},
	})
	cmd.SetArgs([]string{"run", "-", "--values", "board: Home"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, "Home\n", out.String())
}

package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func newFunctionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List the functions a job can call.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := a.catalog.Functions()
			rows := make([][]string, 0, len(specs))
			for _, spec := range specs {
				rows = append(rows, []string{spec.Name, spec.Description})
			}
			printTable(a, []string{"FUNCTION", "DESCRIPTION"}, rows)
			return nil
		},
	}
}

func newProvidersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the provider types a job can construct.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := a.catalog.Providers()
			rows := make([][]string, 0, len(specs))
			for _, spec := range specs {
				rows = append(rows, []string{spec.Type, spec.Description})
			}
			printTable(a, []string{"PROVIDER", "DESCRIPTION"}, rows)
			return nil
		},
	}
}

func printTable(a *app, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(a.out, "none registered")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return style.Inherit(headerStyle)
			}
			return style
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(a.out, t.String())
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the minion version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.out, "minion version %s\n", Version)
			return nil
		},
	}
}

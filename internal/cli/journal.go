package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/minion/internal/config"
	"github.com/kingrea/minion/internal/job"
	"github.com/kingrea/minion/internal/logbook"
)

func (a *app) openLogbook() (*logbook.Logbook, error) {
	if a.settings.Logbook == "" {
		return nil, nil
	}
	return logbook.New(a.fs, a.settings.Logbook)
}

func newLogbookCmd(a *app) *cobra.Command {
	lines := 20
	cmd := &cobra.Command{
		Use:   "logbook",
		Short: "Show the most recent runs recorded in the logbook.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := a.openLogbook()
			if err != nil {
				return err
			}
			if book == nil {
				return fmt.Errorf("no logbook configured; use --logbook or %s", config.EnvLogbook)
			}
			entries, total, err := book.Tail(lines)
			if err != nil {
				return err
			}
			if total == 0 {
				fmt.Fprintln(a.out, "no runs recorded")
				return nil
			}
			for _, entry := range entries {
				fmt.Fprintln(a.out, entry)
			}
			if total > len(entries) {
				fmt.Fprintf(a.out, "(%d of %d entries)\n", len(entries), total)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", lines, "Number of entries to show.")
	return cmd
}

func newJobsCmd(a *app) *cobra.Command {
	quiet := false
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List the jobs found in the jobs search path.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.library().List()
			if err != nil {
				return err
			}
			if quiet {
				for _, entry := range entries {
					fmt.Fprintln(a.out, entry.Name)
				}
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				description := "-"
				if j, err := job.LoadFile(a.fs, entry.Path); err != nil {
					description = "invalid: " + err.Error()
				} else if j.Description != "" {
					description = j.Description
				}
				rows = append(rows, []string{entry.Name, description, entry.Path})
			}
			if len(rows) == 0 {
				fmt.Fprintln(a.out, "no jobs available")
				return nil
			}
			printTable(a, []string{"JOB", "DESCRIPTION", "PATH"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print job names only, one per line.")
	return cmd
}

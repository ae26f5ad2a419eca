package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/minion/internal/config"
	"github.com/kingrea/minion/internal/job"
	"github.com/kingrea/minion/internal/resolver"
)

const runExample = `  # Run a job file
  minion run sync.yaml

  # Run a job by name from the jobs search path
  minion run sync --jobs-dir ~/.minion/jobs

  # Supply parameters from files, later files win
  minion run sync.yaml -p defaults.yaml -p work.yaml

  # Override a single value and ask for anything still missing
  minion run sync.yaml --values '{trello: {board: Home}}' --prompt`

type runCmd struct {
	app         *app
	paramsFiles []string
	values      string
}

func newRunCmd(a *app) *cobra.Command {
	rc := &runCmd{app: a}
	cmd := &cobra.Command{
		Use:     "run JOB",
		Short:   "Resolve a job and drain its result.",
		Long:    "Resolve a job and drain its result. JOB is a file path, the name of a job in the jobs search path, or - to read the job from stdin.",
		Example: runExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.run(cmd, args[0])
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&rc.paramsFiles, "params", "p", nil, "YAML file with parameter values (repeatable).")
	f.StringVar(&rc.values, "values", "", "Parameter values as a YAML mapping.")
	f.BoolVar(&a.settings.Prompt, "prompt", false, "Prompt for parameters that are still missing.")
	return cmd
}

func (c *runCmd) run(cmd *cobra.Command, ref string) error {
	ctx := cmd.Context()
	j, err := c.app.loadJob(ref)
	if err != nil {
		return err
	}
	env, err := config.LoadParams(c.app.fs, c.paramsFiles, c.values)
	if err != nil {
		return err
	}
	book, err := c.app.openLogbook()
	if err != nil {
		return err
	}
	runner := &job.Runner{Catalog: c.app.catalog, Logger: c.app.logger}
	for {
		result, err := runner.Run(ctx, j, env)
		var missing *resolver.ParameterMissingError
		if err != nil && c.app.settings.Prompt && errors.As(err, &missing) {
			value, askErr := c.app.ask(ctx, missing.Parameter)
			if askErr != nil {
				return fmt.Errorf("%w (prompt: %v)", err, askErr)
			}
			if env, err = env.With(missing.Parameter, value); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			if logErr := book.Error("job %s failed: %v", j.Name, err); logErr != nil {
				c.app.logger.Warnf("%v", logErr)
			}
			return err
		}
		if logErr := book.Info("job %s: %d item(s) processed", j.Name, result.Items); logErr != nil {
			c.app.logger.Warnf("%v", logErr)
		}
		return c.report(j, result)
	}
}

func (c *runCmd) report(j job.Job, result job.Result) error {
	out := c.app.out
	if result.Streams == 0 {
		data, err := encodeYAML(result.Value)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		fmt.Fprint(out, string(data))
		return nil
	}
	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("%s: %d item(s) processed", j.Name, result.Items)))
	return nil
}

// encodeYAML marshals v, turning the panics yaml.v3 raises for values it
// cannot represent, such as provider clients holding funcs, into errors.
func encodeYAML(v any) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return yaml.Marshal(v)
}

// loadJob reads the job from stdin when ref is "-". Otherwise ref is a path
// when such a file exists, or a job name looked up in the jobs search path.
func (a *app) loadJob(ref string) (job.Job, error) {
	if ref == "-" {
		return job.LoadReader("stdin", a.in)
	}
	if ok, err := afero.Exists(a.fs, ref); err == nil && ok {
		return job.LoadFile(a.fs, ref)
	}
	if len(a.settings.JobDirs) == 0 {
		return job.LoadFile(a.fs, ref)
	}
	return a.library().Find(ref)
}

func (a *app) library() *job.Library {
	return job.NewLibrary(a.fs, a.settings.JobDirs...)
}

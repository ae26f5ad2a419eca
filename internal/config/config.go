// internal/config/config.go
//
// Process settings for the minion CLI and loading of parameter files.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/imdario/mergo"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/minion/internal/params"
)

const (
	// EnvLogLevel overrides the default --log-level.
	EnvLogLevel = "MINION_LOG_LEVEL"
	// EnvLogFormat overrides the default --log-format.
	EnvLogFormat = "MINION_LOG_FORMAT"
	// EnvJobsPath lists job directories, separated like PATH.
	EnvJobsPath = "MINION_JOBS_PATH"
	// EnvLogbook names the run journal file.
	EnvLogbook = "MINION_LOGBOOK"

	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// Settings holds the global CLI settings.
type Settings struct {
	LogLevel  string
	LogFormat string
	// JobDirs is searched, in order, for jobs given by name.
	JobDirs []string
	// Logbook is the run journal path; empty disables it.
	Logbook string
	// Prompt asks for missing parameters interactively.
	Prompt bool
}

// Default returns settings seeded from the environment.
func Default() Settings {
	return Settings{
		LogLevel:  envOr(EnvLogLevel, defaultLogLevel),
		LogFormat: envOr(EnvLogFormat, defaultLogFormat),
		JobDirs:   splitList(os.Getenv(EnvJobsPath)),
		Logbook:   strings.TrimSpace(os.Getenv(EnvLogbook)),
	}
}

// AddFlags binds the global flags to s. Current field values are the
// flag defaults.
func (s *Settings) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&s.LogLevel, "log-level", s.LogLevel, "Log level: debug, info, warn or error.")
	fs.StringVar(&s.LogFormat, "log-format", s.LogFormat, "Log format: text or json.")
	fs.StringSliceVar(&s.JobDirs, "jobs-dir", s.JobDirs, "Directories searched for jobs given by name. (default from "+EnvJobsPath+")")
	fs.StringVar(&s.Logbook, "logbook", s.Logbook, "File that records one line per run. (default from "+EnvLogbook+")")
}

// Validate checks the settings after flag parsing.
func (s *Settings) Validate() error {
	s.LogLevel = strings.ToLower(strings.TrimSpace(s.LogLevel))
	s.LogFormat = strings.ToLower(strings.TrimSpace(s.LogFormat))
	switch s.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: log level must be debug, info, warn or error, got %q", s.LogLevel)
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: log format must be text or json, got %q", s.LogFormat)
	}
	return nil
}

// LoadParams reads YAML mappings of parameter values from paths, in order,
// then from inline (a YAML string, as given on the command line). Later
// sources take precedence: mappings merge key by key, lists are extended and
// any other value is replaced.
func LoadParams(fsys afero.Fs, paths []string, inline string) (params.Env, error) {
	values := map[string]any{}
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return params.Env{}, fmt.Errorf("config: params file %s does not exist", path)
			}
			return params.Env{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := mergeYAML(values, data); err != nil {
			return params.Env{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := mergeYAML(values, []byte(inline)); err != nil {
		return params.Env{}, fmt.Errorf("config: parse inline values: %w", err)
	}
	env, err := params.New(values)
	if err != nil {
		return params.Env{}, fmt.Errorf("config: %w", err)
	}
	return env, nil
}

func mergeYAML(dst map[string]any, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	return Merge(dst, values)
}

// Merge folds src into dst. Nested mappings merge recursively, lists are
// appended to and other values overwrite.
func Merge(dst, src map[string]any) error {
	return mergo.Merge(&dst, src, mergo.WithOverride, mergo.WithAppendSlice)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range filepath.SplitList(value) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

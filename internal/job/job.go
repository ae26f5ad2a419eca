// Package job loads job documents and runs them end to end.
package job

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/minion/internal/tags"
)

// SpecPath is the document path errors inside a job's spec are reported
// against.
const SpecPath = "spec"

// Job is a parsed job document. Spec holds the unresolved tag tree.
type Job struct {
	Name        string
	Description string
	Spec        tags.Node
}

type document struct {
	Description string    `yaml:"description"`
	Spec        yaml.Node `yaml:"spec"`
}

// Parse decodes a job document. name is used in error messages and reports.
func Parse(name string, data []byte) (Job, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Job{}, fmt.Errorf("job: %s: document is empty", name)
	}
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Job{}, fmt.Errorf("job: %s: decode: %w", name, err)
	}
	if doc.Spec.Kind == 0 {
		return Job{}, fmt.Errorf("job: %s: spec is required", name)
	}
	spec, err := tags.FromYAML(&doc.Spec, SpecPath)
	if err != nil {
		return Job{}, fmt.Errorf("job: %s: %w", name, err)
	}
	return Job{
		Name:        name,
		Description: strings.TrimSpace(doc.Description),
		Spec:        spec,
	}, nil
}

// LoadReader reads a job document from r.
func LoadReader(name string, r io.Reader) (Job, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Job{}, fmt.Errorf("job: read %s: %w", name, err)
	}
	return Parse(name, content)
}

// LoadFile loads a job from an explicit path. The job is named after the
// file without its extension.
func LoadFile(fs afero.Fs, path string) (Job, error) {
	if fs == nil {
		return Job{}, errors.New("job: filesystem is required")
	}
	file, err := fs.Open(path)
	if err != nil {
		return Job{}, fmt.Errorf("job: read %s: %w", path, err)
	}
	defer file.Close()
	return LoadReader(NameFromPath(path), file)
}

// NameFromPath derives a job name from its file path.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

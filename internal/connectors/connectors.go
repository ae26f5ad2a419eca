// Package connectors assembles the catalog of everything a job can name.
package connectors

import (
	"io"

	"github.com/kingrea/minion/internal/connectors/github"
	"github.com/kingrea/minion/internal/connectors/gitlab"
	"github.com/kingrea/minion/internal/connectors/helpscout"
	"github.com/kingrea/minion/internal/connectors/kantree"
	"github.com/kingrea/minion/internal/connectors/trello"
	"github.com/kingrea/minion/internal/functions"
	"github.com/kingrea/minion/internal/registry"
)

// Options configures the builtin catalog.
type Options struct {
	// Out receives pretty_print output.
	Out io.Writer
}

// RegisterBuiltins installs the builtin functions and every connector into
// the provided catalog.
func RegisterBuiltins(cat *registry.Catalog, opts Options) {
	if cat == nil {
		return
	}
	functions.Register(cat, functions.Options{Out: opts.Out})
	github.Register(cat)
	gitlab.Register(cat)
	helpscout.Register(cat)
	kantree.Register(cat)
	trello.Register(cat)
}

// NewCatalog returns a catalog populated by RegisterBuiltins.
func NewCatalog(opts Options) *registry.Catalog {
	cat := registry.NewCatalog()
	RegisterBuiltins(cat, opts)
	return cat
}

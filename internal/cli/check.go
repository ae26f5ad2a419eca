package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/kingrea/minion/internal/job"
	"github.com/kingrea/minion/internal/registry"
	"github.com/kingrea/minion/internal/tags"
)

const checkExample = `  # Print the tag tree of a job and verify every name it uses
  minion check sync.yaml`

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "check JOB",
		Short:   "Parse a job, print its tag tree and verify the names it uses.",
		Example: checkExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.loadJob(args[0])
			if err != nil {
				return err
			}
			tree := treeprint.New()
			tree.SetValue(j.Name)
			if j.Description != "" {
				tree.SetMetaValue(strings.TrimSpace(j.Description))
			}
			unknown := map[string]bool{}
			addNode(tree, job.SpecPath, j.Spec, a.catalog, unknown)
			fmt.Fprintln(a.out, tree.String())
			if len(unknown) > 0 {
				names := make([]string, 0, len(unknown))
				for name := range unknown {
					names = append(names, name)
				}
				sort.Strings(names)
				return fmt.Errorf("%s: unknown %s", j.Name, strings.Join(names, ", "))
			}
			return nil
		},
	}
}

// addNode renders n under tree and records names the catalog lacks.
func addNode(tree treeprint.Tree, key string, n tags.Node, cat *registry.Catalog, unknown map[string]bool) {
	switch n := n.(type) {
	case nil:
		tree.AddNode(key + ": null")
	case *tags.Scalar:
		tree.AddNode(fmt.Sprintf("%s: %v", key, n.Value))
	case *tags.Mapping:
		branch := tree.AddBranch(key)
		addEntries(branch, n, cat, unknown)
	case *tags.Sequence:
		branch := tree.AddBranch(key)
		for i, item := range n.Items {
			addNode(branch, fmt.Sprintf("[%d]", i), item, cat, unknown)
		}
	case *tags.ProviderDef:
		if _, ok := cat.Provider(n.Type); !ok {
			unknown["provider "+n.Type] = true
		}
		branch := tree.AddMetaBranch("provider:"+n.Type, key)
		addEntries(branch, n.Kwargs, cat, unknown)
	case *tags.ProviderRef:
		tree.AddMetaNode("provider-ref:"+n.Type, key)
	case *tags.FunctionCall:
		if _, ok := cat.Function(n.Name); !ok {
			unknown["function "+n.Name] = true
		}
		branch := tree.AddMetaBranch("function:"+n.Name, key)
		addEntries(branch, n.Kwargs, cat, unknown)
	case *tags.ParameterRef:
		if !n.HasDefault {
			tree.AddMetaNode("param", fmt.Sprintf("%s <- %s", key, n.Path))
			return
		}
		branch := tree.AddMetaBranch("param", fmt.Sprintf("%s <- %s", key, n.Path))
		addNode(branch, "default", n.Default, cat, unknown)
	}
}

func addEntries(tree treeprint.Tree, m *tags.Mapping, cat *registry.Catalog, unknown map[string]bool) {
	if m == nil {
		return
	}
	for _, entry := range m.Entries {
		addNode(tree, entry.Key, entry.Value, cat, unknown)
	}
}

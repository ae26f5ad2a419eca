package functions

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/minion/internal/pipeline"
	"github.com/kingrea/minion/internal/registry"
)

func prettyPrint(out io.Writer) registry.Function {
	return func(_ context.Context, kw registry.Kwargs) (any, error) {
		if err := kw.Only("items"); err != nil {
			return nil, err
		}
		items, err := kw.Stream("items")
		if err != nil {
			return nil, err
		}
		return pipeline.Map(items, func(_ context.Context, item any) (any, error) {
			if err := writeYAML(out, item); err != nil {
				return nil, err
			}
			return item, nil
		}), nil
	}
}

// writeYAML prints item as its own YAML document.
func writeYAML(out io.Writer, item any) error {
	payload, err := yaml.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	if _, err := fmt.Fprintf(out, "---\n%s", payload); err != nil {
		return fmt.Errorf("write item: %w", err)
	}
	return nil
}

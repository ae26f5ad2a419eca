package tags

import "fmt"

// TagSyntaxError reports a malformed tag or a tag missing its required
// sub-structure. Path is the dotted document path of the offending node.
type TagSyntaxError struct {
	Tag    string
	Path   string
	At     Position
	Reason string
}

func (e *TagSyntaxError) Error() string {
	return fmt.Sprintf("tags: %s at %s (%s): %s", e.Tag, displayPath(e.Path), e.At, e.Reason)
}

// StructureError reports document problems that are not tag related, such as
// duplicate mapping keys.
type StructureError struct {
	Path   string
	At     Position
	Reason string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("tags: %s (%s): %s", displayPath(e.Path), e.At, e.Reason)
}

func displayPath(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}

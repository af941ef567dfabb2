package template

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dukex/autoflow/pkg/tree"
)

// ErrInvalidTemplate is returned for step inputs holding a template that does not parse.
var ErrInvalidTemplate = errors.New("invalid template")

// inputNode is one value of a step's input tree, addressed by its key under the parent.
type inputNode struct {
	key   string
	value any
}

func inputChildren(n inputNode) []inputNode {
	switch v := n.value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}

		slices.Sort(keys)

		nodes := make([]inputNode, 0, len(keys))
		for _, key := range keys {
			nodes = append(nodes, inputNode{key: key, value: v[key]})
		}

		return nodes
	case []any:
		nodes := make([]inputNode, 0, len(v))
		for i, item := range v {
			nodes = append(nodes, inputNode{key: strconv.Itoa(i), value: item})
		}

		return nodes
	default:
		return nil
	}
}

func isTemplated(n inputNode) bool {
	s, ok := n.value.(string)

	return ok && NeedsTemplating(s)
}

// TemplatedInputs returns the dotted paths of every templated string in inputs, sorted.
func TemplatedInputs(inputs map[string]any) []string {
	matches := tree.Search(inputNode{value: inputs}, inputChildren, isTemplated,
		tree.Options{Mode: tree.AllMatches, RecordPath: true})

	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, dotted(m.Path))
	}

	return paths
}

// Validate parses every templated string in inputs and reports the ones that fail,
// each prefixed with its dotted input path.
func Validate(inputs map[string]any) error {
	matches := tree.Search(inputNode{value: inputs}, inputChildren, isTemplated,
		tree.Options{Mode: tree.AllMatches, RecordPath: true})

	var errs []error

	for _, m := range matches {
		if _, err := parse(m.Node.value.(string)); err != nil {
			errs = append(errs, fmt.Errorf("%w at %s: %w", ErrInvalidTemplate, dotted(m.Path), err))
		}
	}

	return errors.Join(errs...)
}

// dotted joins the keys of a path, skipping the unnamed root.
func dotted(path []inputNode) string {
	keys := make([]string, 0, len(path))
	for _, n := range path[1:] {
		keys = append(keys, n.key)
	}

	return strings.Join(keys, ".")
}

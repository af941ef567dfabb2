// Package tree searches arbitrary trees without recursion, so deep trees cannot
// exhaust the goroutine stack.
package tree

// Mode selects how many matches Search records.
type Mode int

const (
	// FirstMatch stops at the first matching node in pre-order.
	FirstMatch Mode = iota
	// AllMatches visits the whole tree.
	AllMatches
)

// Match is a node accepted by the predicate. Path runs from the root to Node, both
// included, and is only filled when paths are recorded.
type Match[T any] struct {
	Node T
	Path []T
}

// Options parameterize Search.
type Options struct {
	Mode       Mode
	RecordPath bool
}

type frame[T any] struct {
	node  T
	depth int
}

// Search walks the tree under root depth-first, in the same order a recursive pre-order
// traversal would, and returns the nodes for which match reports true. children returns
// the direct children of a node in order.
func Search[T any](root T, children func(T) []T, match func(T) bool, opts Options) []Match[T] {
	var (
		matches []Match[T]
		path    []T
	)

	stack := []frame[T]{{node: root}}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if opts.RecordPath {
			path = append(path[:current.depth], current.node)
		}

		if match(current.node) {
			m := Match[T]{Node: current.node}
			if opts.RecordPath {
				m.Path = append([]T(nil), path...)
			}

			matches = append(matches, m)

			if opts.Mode == FirstMatch {
				return matches
			}
		}

		kids := children(current.node)
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame[T]{node: kids[i], depth: current.depth + 1})
		}
	}

	return matches
}

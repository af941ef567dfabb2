package persistence

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NextRevision returns the revision following current, in the form "<n>-<hash>".
func NextRevision(current string) string {
	return fmt.Sprintf("%d-%s", RevisionNumber(current)+1, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// RevisionNumber returns the sequence part of a revision, or 0 when rev is empty or malformed.
func RevisionNumber(rev string) int {
	prefix, _, found := strings.Cut(rev, "-")
	if !found {
		return 0
	}

	n, err := strconv.Atoi(prefix)
	if err != nil || n < 0 {
		return 0
	}

	return n
}

// CheckRevision verifies that a write carrying rev may replace the stored revision
// current. An empty current means the document does not exist yet.
func CheckRevision(current, rev string) error {
	if current != rev {
		return ErrRevisionConflict
	}

	return nil
}

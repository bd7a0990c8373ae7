// Package resolver resolves the opaque prefixes a user types at the CLI
// (chain IDs, message IDs) into the full IDs recorded in run directories.
package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jtmckay/decree/internal/storage"
)

// IDResolver resolves a (possibly abbreviated) message or chain ID to a
// full message ID recorded in storage.
type IDResolver interface {
	Resolve(prefix string) (string, error)
	ResolveChain(prefix string) ([]string, error)
}

// AmbiguousPrefixError is returned when a prefix matches more than one
// full ID. Matches is sorted for deterministic error messages.
type AmbiguousPrefixError struct {
	Prefix  string
	Matches []string
}

func (e *AmbiguousPrefixError) Error() string {
	return fmt.Sprintf("ambiguous prefix %q matches %d ids: %s", e.Prefix, len(e.Matches), strings.Join(e.Matches, ", "))
}

// NotFoundError is returned when a prefix matches no recorded ID.
type NotFoundError struct {
	Prefix string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no message found matching %q", e.Prefix)
}

// Resolver resolves message/chain ID prefixes against the run directories
// a Storage implementation tracks.
type Resolver struct {
	Storage storage.Storage
}

// New creates a Resolver backed by s.
func New(s storage.Storage) *Resolver {
	return &Resolver{Storage: s}
}

// Resolve returns the full message ID whose run directory name starts with
// prefix. An exact match always wins even if other IDs share the prefix
// (chain-1 is a prefix of chain-12); if no exact match exists, exactly one
// prefix match resolves unambiguously, and more than one is reported via
// AmbiguousPrefixError.
func (r *Resolver) Resolve(prefix string) (string, error) {
	ids, err := r.Storage.ListRunIDs()
	if err != nil {
		return "", fmt.Errorf("list run ids: %w", err)
	}

	var matches []string
	for _, id := range ids {
		if id == prefix {
			return id, nil
		}
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Prefix: prefix}
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", &AmbiguousPrefixError{Prefix: prefix, Matches: matches}
	}
}

// ResolveChain returns every message ID whose chain component starts with
// prefix, sorted by sequence number ascending (depth-first chain order).
// Unlike Resolve, multiple matches are expected and returned rather than
// treated as an error: a chain prefix naturally owns every message in it.
func (r *Resolver) ResolveChain(prefix string) ([]string, error) {
	ids, err := r.Storage.ListRunIDs()
	if err != nil {
		return nil, fmt.Errorf("list run ids: %w", err)
	}

	var matches []string
	for _, id := range ids {
		chain, _, ok := SplitMessageID(id)
		if !ok {
			continue
		}
		if strings.HasPrefix(chain, prefix) {
			matches = append(matches, id)
		}
	}

	if len(matches) == 0 {
		return nil, &NotFoundError{Prefix: prefix}
	}

	sort.Slice(matches, func(i, j int) bool {
		ci, si, _ := SplitMessageID(matches[i])
		cj, sj, _ := SplitMessageID(matches[j])
		if ci != cj {
			return ci < cj
		}
		return si < sj
	})
	return matches, nil
}

// SplitMessageID splits a message ID of the form "<chain>-<seq>" into its
// chain and sequence components. ok is false if id does not contain the
// separator.
func SplitMessageID(id string) (chain string, seq int, ok bool) {
	idx := strings.LastIndex(id, "-")
	if idx < 0 {
		return "", 0, false
	}
	chain = id[:idx]
	seqPart := id[idx+1:]
	n := 0
	for _, c := range seqPart {
		if c < '0' || c > '9' {
			return "", 0, false
		}
		n = n*10 + int(c-'0')
	}
	return chain, n, true
}

var _ IDResolver = (*Resolver)(nil)

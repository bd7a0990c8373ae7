package checkpoint

import "fmt"

// IntegrityViolation is returned by Revert when the post-revert tree does
// not match the pre-execution manifest for an affected path. It is fatal:
// the controller surfaces it as a hard, non-recoverable error.
type IntegrityViolation struct {
	Path string
}

func (e *IntegrityViolation) Error() string {
	return fmt.Sprintf("integrity violation reverting %s: post-revert content does not match pre-execution manifest", e.Path)
}

// Revert applies the inverse of every hunk in diff to root: creates become
// deletes, deletes become creates, modifies restore the pre-image. Because
// the checkpoint is taken immediately before execution and the routine is
// the exclusive writer during execution, reverse application is expected to
// always succeed. Revert then re-snapshots root and compares every affected
// path's digest against pre, the pre-execution manifest, failing with
// IntegrityViolation on any mismatch.
func Revert(diff, root string, pre *Manifest, opts Options) error {
	hunks, err := ParseHunks(diff)
	if err != nil {
		return err
	}

	for _, h := range hunks {
		if err := revertHunk(h, root); err != nil {
			return fmt.Errorf("revert %s: %w", h.Path, err)
		}
	}

	post, _, err := Snapshot(root, opts, "")
	if err != nil {
		return fmt.Errorf("post-revert snapshot: %w", err)
	}

	for _, h := range hunks {
		if h.Kind == KindCreate {
			// Reverted to non-existence; nothing to compare.
			continue
		}
		preMeta, hadPre := pre.Files[h.Path]
		postMeta, hasPost := post.Files[h.Path]
		if !hadPre || !hasPost || preMeta.Hash != postMeta.Hash {
			return &IntegrityViolation{Path: h.Path}
		}
	}
	return nil
}

func revertHunk(h Hunk, root string) error {
	switch h.Kind {
	case KindCreate:
		return applyHunk(Hunk{Path: h.Path, Kind: KindDelete}, root)
	case KindDelete:
		return applyHunk(Hunk{Path: h.Path, Kind: KindCreate, PostContent: h.PreContent, Mode: h.Mode}, root)
	case KindModify:
		return applyHunk(Hunk{Path: h.Path, Kind: KindModify, PostContent: h.PreContent, Mode: h.Mode}, root)
	}
	return fmt.Errorf("unknown hunk kind %q", h.Kind)
}

package message

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jtmckay/decree/internal/resolver"
	"github.com/jtmckay/decree/internal/storage"
)

// filenamePattern matches the canonical "<chain>-<seq>.ext" message
// filename: a 16-character chain id, a dash, a non-negative sequence
// number, and an extension.
var filenamePattern = regexp.MustCompile(`^([0-9]{14}[0-9]{2})-([0-9]+)\.[^.]+$`)

// Warning records a non-fatal inconsistency Normalize resolved in the
// message's favor of the header, per the source's "header wins" rule.
type Warning struct {
	Field    string
	Filename string
	Header   string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s mismatch: filename says %q, header says %q (header wins)", w.Field, w.Filename, w.Header)
}

// RouterFunc invokes the external router AI collaborator with a message
// body and the available routines, returning the routine name it chose.
// Decree's core never talks to the router AI directly; callers supply this
// hook backed by config.Commands.Router.
type RouterFunc func(body string, routines []RoutineInfo) (string, error)

// Options configures a single Normalize call.
type Options struct {
	// Root is the project root, used to resolve a spec message's
	// InputFile when consulting its frontmatter for a routine. Spec
	// frontmatter consultation is skipped when Root is empty.
	Root string

	// DefaultRoutine is the configured fallback routine name.
	DefaultRoutine string

	// Routines lists the routines discovered in the runtime routines
	// directory, used to resolve a spec's frontmatter routine reference
	// and to build the router AI prompt.
	Routines []RoutineInfo

	// Router is invoked when no routine can otherwise be determined. A nil
	// Router is treated as always unavailable, falling through silently.
	Router RouterFunc

	// ExplicitRoutineSelected marks that the message's routine field, if
	// set, was chosen deliberately by whatever created the message (for
	// example a `run -m` invocation) rather than left for the normalizer
	// to infer. The router AI is only consulted when no such deliberate
	// choice exists.
	ExplicitRoutineSelected bool
}

// Result is the outcome of a single Normalize call.
type Result struct {
	Message  *Message
	Rewrote  bool
	Warnings []Warning
}

// Normalize reads the message file at path, fills in whatever fields spec
// section 4.C leaves underdetermined, and atomically rewrites the file if
// its header changed. The body is always preserved byte-for-byte.
func Normalize(path string, opts Options) (*Result, error) {
	pf, err := ParseFile(path)
	if err != nil {
		return nil, err
	}

	original := pf.Header
	h := pf.Header
	var warnings []Warning

	fnChain, fnSeq, fnOK := filenameChainSeq(path)

	// Step 1 & 2: derive chain/seq from filename, then prefer the header
	// when it disagrees.
	switch {
	case h.Chain != "" && fnOK && h.Chain != fnChain:
		warnings = append(warnings, Warning{Field: "chain", Filename: fnChain, Header: h.Chain})
	case h.Chain == "" && fnOK:
		h.Chain = fnChain
	}

	switch {
	case h.Seq != nil && fnOK && *h.Seq != fnSeq:
		warnings = append(warnings, Warning{Field: "seq", Filename: strconv.Itoa(fnSeq), Header: strconv.Itoa(*h.Seq)})
	case h.Seq == nil && fnOK:
		seq := fnSeq
		h.Seq = &seq
	}

	// Step 3: mint a chain if still absent; default seq to 0.
	if h.Chain == "" {
		h.Chain = NewChainID()
	}
	if h.Seq == nil {
		zero := 0
		h.Seq = &zero
	}

	// Step 4: recompute id.
	h.ID = fmt.Sprintf("%s-%d", h.Chain, *h.Seq)

	// Step 5: infer type from input_file.
	if h.Type == "" {
		if h.InputFile != "" && strings.HasSuffix(h.InputFile, specExt) {
			h.Type = "spec"
		} else {
			h.Type = "task"
		}
	}

	// Step 6 & 7: resolve routine.
	routine, err := resolveRoutine(h, pf.Body, opts)
	if err != nil {
		return nil, err
	}
	h.Routine = routine

	rewrote := !headersEqual(h, original)
	if rewrote {
		data, err := render(h, pf.Body)
		if err != nil {
			return nil, err
		}
		if err := atomicRewrite(path, data); err != nil {
			return nil, err
		}
	}

	return &Result{
		Message:  toMessage(path, h, pf.Body),
		Rewrote:  rewrote,
		Warnings: warnings,
	}, nil
}

// headersEqual compares two headerDoc values field by field since Seq is a
// pointer and Extra is a map, neither of which is comparable with ==.
func headersEqual(a, b headerDoc) bool {
	if a.ID != b.ID || a.Chain != b.Chain || a.Type != b.Type ||
		a.InputFile != b.InputFile || a.Routine != b.Routine {
		return false
	}
	if (a.Seq == nil) != (b.Seq == nil) {
		return false
	}
	if a.Seq != nil && *a.Seq != *b.Seq {
		return false
	}
	if len(a.Extra) != len(b.Extra) {
		return false
	}
	for k, v := range a.Extra {
		if b.Extra[k] != v {
			return false
		}
	}
	return true
}

// resolveRoutine implements step 6/7. A routine explicitly present in the
// header is left untouched. Otherwise a fallback candidate is built from,
// in order, the spec's own frontmatter (for spec messages), the
// configured default, and the literal fallback "develop". Unless the
// routine was deliberately chosen by whatever created the message, the
// router AI is then given a chance to override that candidate; an
// unrecognized or failing router result leaves the fallback candidate in
// place.
func resolveRoutine(h headerDoc, body string, opts Options) (string, error) {
	if h.Routine != "" {
		return h.Routine, nil
	}

	const literalFallback = "develop"

	fallback := ""
	if h.Type == "spec" && h.InputFile != "" && opts.Root != "" {
		if r, err := specFrontmatterRoutine(opts.Root, h.InputFile); err == nil {
			fallback = r
		}
	}
	if fallback == "" {
		fallback = opts.DefaultRoutine
	}
	if fallback == "" {
		fallback = literalFallback
	}

	if !opts.ExplicitRoutineSelected && opts.Router != nil {
		name, err := opts.Router(body, opts.Routines)
		if err == nil && routineRecognized(name, opts.Routines) {
			return name, nil
		}
	}
	return fallback, nil
}

// specFrontmatterRoutine reads a spec message's own input file (relative
// to root) and returns the routine named in its header, if any.
func specFrontmatterRoutine(root, inputFile string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, inputFile))
	if err != nil {
		return "", err
	}
	headerText, _, hasHeader := splitHeader(string(data))
	if !hasHeader || strings.TrimSpace(headerText) == "" {
		return "", nil
	}
	var h headerDoc
	if err := yaml.Unmarshal([]byte(headerText), &h); err != nil {
		return "", err
	}
	return h.Routine, nil
}

func routineRecognized(name string, routines []RoutineInfo) bool {
	if name == "" {
		return false
	}
	for _, r := range routines {
		if r.Name == name {
			return true
		}
	}
	return false
}

// filenameChainSeq extracts the chain and sequence from a canonical
// "<chain>-<seq>.ext" filename, reusing the same split the resolver
// package uses for run-directory IDs.
func filenameChainSeq(path string) (chain string, seq int, ok bool) {
	base := pathBase(path)
	if !filenamePattern.MatchString(base) {
		return "", 0, false
	}
	dot := strings.LastIndex(base, ".")
	id := base[:dot]
	return resolver.SplitMessageID(id)
}

func pathBase(path string) string {
	idx := strings.LastIndexAny(path, `/\`)
	if idx == -1 {
		return path
	}
	return path[idx+1:]
}

// chainCounter disambiguates chain IDs minted within the same wall-clock
// second.
var chainCounter = newMonotonicCounter()

// NewChainID mints a chain ID: 14-digit YYYYMMDDHHmmss plus a 2-digit
// intra-second counter, per the source's chain id invariant.
func NewChainID() string {
	now := time.Now().UTC()
	n := chainCounter.next(now)
	return fmt.Sprintf("%s%02d", now.Format("20060102150405"), n)
}

// monotonicCounter hands out a 0..99 counter that resets whenever the
// wall-clock second advances, so IDs minted in the same second stay
// distinct without colliding across seconds. Safe for concurrent use by
// the daemon's cron and inbox phases.
type monotonicCounter struct {
	mu         sync.Mutex
	lastSecond int64
	count      int
}

func newMonotonicCounter() *monotonicCounter {
	return &monotonicCounter{lastSecond: -1}
}

func (c *monotonicCounter) next(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	sec := now.Unix()
	if sec != c.lastSecond {
		c.lastSecond = sec
		c.count = 0
	} else {
		c.count++
	}
	return c.count % 100
}

// atomicRewrite writes data to path via a temp-file-and-rename in the same
// directory, matching storage's atomic write convention for run files.
func atomicRewrite(path string, data []byte) error {
	return storage.AtomicWriteFile(path, data)
}

package routine

import (
	"sort"
	"strconv"
)

// RunContext carries the standard parameters every routine invocation
// receives regardless of its declared custom parameter set.
type RunContext struct {
	SpecFile   string
	MessageFile string
	MessageID  string
	MessageDir string
	Chain      string
	Seq        int
}

// standardBindings flattens ctx into the fixed standard-parameter names.
func (ctx RunContext) standardBindings() map[string]string {
	return map[string]string{
		"spec_file":    ctx.SpecFile,
		"message_file": ctx.MessageFile,
		"message_id":   ctx.MessageID,
		"message_dir":  ctx.MessageDir,
		"chain":        ctx.Chain,
		"seq":          strconv.Itoa(ctx.Seq),
	}
}

// BuildBindings constructs the environment binding map for one invocation:
// the standard parameters from ctx, plus each custom parameter whose name
// appears in extra, bound to the message's value. Unknown extra fields are
// silently dropped; a custom parameter absent from extra keeps its
// declared default.
func BuildBindings(ctx RunContext, params []Param, extra map[string]string) map[string]string {
	bindings := ctx.standardBindings()
	for _, p := range params {
		if v, ok := extra[p.Name]; ok {
			bindings[p.Name] = v
		} else {
			bindings[p.Name] = p.Default
		}
	}
	return bindings
}

// envPairs renders bindings as sorted "NAME=value" process environment
// entries, for deterministic, reviewable command invocations.
func envPairs(bindings map[string]string) []string {
	names := make([]string, 0, len(bindings))
	for k := range bindings {
		names = append(names, k)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, k := range names {
		pairs = append(pairs, k+"="+bindings[k])
	}
	return pairs
}

package archive

import (
	"fmt"
	"sort"
	"strings"
)

// KindCounts tallies restore outcomes for one record kind.
type KindCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Report summarizes one restore run. Unresolved lists records skipped
// because a natural-key reference did not resolve; Failed lists records the
// store rejected for any other reason.
type Report struct {
	Mode       Mode                `json:"mode"`
	DryRun     bool                `json:"dry_run"`
	Kinds      map[Kind]KindCounts `json:"kinds"`
	Unresolved []string            `json:"unresolved,omitempty"`
	Failed     []string            `json:"failed,omitempty"`
}

func newReport(mode Mode, dryRun bool) *Report {
	return &Report{Mode: mode, DryRun: dryRun, Kinds: make(map[Kind]KindCounts)}
}

func (r *Report) created(kind Kind) {
	c := r.Kinds[kind]
	c.Created++
	r.Kinds[kind] = c
}

func (r *Report) updated(kind Kind) {
	c := r.Kinds[kind]
	c.Updated++
	r.Kinds[kind] = c
}

func (r *Report) skipped(kind Kind) {
	c := r.Kinds[kind]
	c.Skipped++
	r.Kinds[kind] = c
}

func (r *Report) unresolved(kind Kind, key, reason string) {
	c := r.Kinds[kind]
	c.Skipped++
	r.Kinds[kind] = c
	r.Unresolved = append(r.Unresolved, fmt.Sprintf("%s %s: %s", kind, key, reason))
}

func (r *Report) failed(kind Kind, key string, err error) {
	c := r.Kinds[kind]
	c.Failed++
	r.Kinds[kind] = c
	r.Failed = append(r.Failed, fmt.Sprintf("%s %s: %v", kind, key, err))
}

// HasFailures reports whether any record hard-failed. Unresolved references
// are skips, not failures.
func (r *Report) HasFailures() bool {
	return len(r.Failed) > 0
}

// Summary renders the report for CLI output.
func (r *Report) Summary() string {
	var b strings.Builder
	if r.DryRun {
		b.WriteString("dry run, no records written\n")
	}

	kinds := make([]Kind, 0, len(r.Kinds))
	for k := range r.Kinds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kindOrder[kinds[i]] < kindOrder[kinds[j]] })

	for _, k := range kinds {
		c := r.Kinds[k]
		fmt.Fprintf(&b, "%-12s created=%d updated=%d skipped=%d failed=%d\n",
			k, c.Created, c.Updated, c.Skipped, c.Failed)
	}
	for _, u := range r.Unresolved {
		fmt.Fprintf(&b, "unresolved: %s\n", u)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(&b, "failed: %s\n", f)
	}
	return b.String()
}

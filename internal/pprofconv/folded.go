package pprofconv

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/pprof/profile"
)

// WriteFolded writes p in folded stack format, one "root;...;leaf count"
// line per stack, as consumed by flamegraph.pl. valueIndex selects the
// sample value to print. Lines are sorted for stable output.
func WriteFolded(w io.Writer, p *profile.Profile, valueIndex int) error {
	if valueIndex < 0 || valueIndex >= len(p.SampleType) {
		return fmt.Errorf("value index %d out of range", valueIndex)
	}

	totals := make(map[string]int64)
	for _, s := range p.Sample {
		frames := make([]string, 0, len(s.Location))
		// Locations are leaf first.
		for i := len(s.Location) - 1; i >= 0; i-- {
			for _, line := range s.Location[i].Line {
				frames = append(frames, line.Function.Name)
			}
		}
		if len(frames) == 0 {
			continue
		}
		totals[strings.Join(frames, ";")] += s.Value[valueIndex]
	}

	stacks := make([]string, 0, len(totals))
	for stack := range totals {
		stacks = append(stacks, stack)
	}
	sort.Strings(stacks)

	for _, stack := range stacks {
		if _, err := fmt.Fprintf(w, "%s %d\n", stack, totals[stack]); err != nil {
			return err
		}
	}
	return nil
}

// Package pprofconv converts devtools CPU profiles to pprof profiles.
//
// Every sample of the devtools profile becomes one observation of its leaf
// node's stack, weighted by the time delta recorded with it. Profiles that
// carry no sample list fall back to node hit counts, spreading the profile
// duration evenly over the hits.
package pprofconv

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/pprof/profile"

	"github.com/coral-mesh/devprof/internal/protocol"
)

// ErrEmptyProfile is returned for a nil profile or one without nodes.
var ErrEmptyProfile = errors.New("profile has no nodes")

// rootFunction names the synthetic root node of every devtools profile.
const rootFunction = "(root)"

type funcKey struct {
	name     string
	url      string
	scriptID protocol.ScriptID
	line     int
}

// Convert builds a pprof profile with two sample types, samples/count and
// wall/microseconds.
func Convert(p *protocol.Profile) (*profile.Profile, error) {
	if p == nil || len(p.Nodes) == 0 {
		return nil, ErrEmptyProfile
	}

	nodes := make(map[int]*protocol.ProfileNode, len(p.Nodes))
	parent := make(map[int]int, len(p.Nodes))
	for i := range p.Nodes {
		n := &p.Nodes[i]
		nodes[n.ID] = n
		for _, child := range n.Children {
			parent[child] = n.ID
		}
	}

	out := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "samples", Unit: "count"},
			{Type: "wall", Unit: "microseconds"},
		},
		PeriodType:    &profile.ValueType{Type: "wall", Unit: "microseconds"},
		TimeNanos:     int64(p.StartTime * float64(time.Microsecond)),
		DurationNanos: int64(p.Duration() * float64(time.Microsecond)),
	}

	functions := make(map[funcKey]*profile.Function)
	locations := make(map[int]*profile.Location)

	locationOf := func(n *protocol.ProfileNode) *profile.Location {
		if loc, ok := locations[n.ID]; ok {
			return loc
		}
		cf := n.CallFrame
		key := funcKey{name: cf.FunctionName, url: cf.URL, scriptID: cf.ScriptID, line: cf.LineNumber}
		fn, ok := functions[key]
		if !ok {
			name := cf.FunctionName
			if name == "" {
				name = "(anonymous)"
			}
			fn = &profile.Function{
				ID:         uint64(len(out.Function) + 1),
				Name:       name,
				SystemName: name,
				Filename:   cf.URL,
				StartLine:  int64(cf.LineNumber + 1),
			}
			out.Function = append(out.Function, fn)
			functions[key] = fn
		}
		loc := &profile.Location{
			ID:   uint64(len(out.Location) + 1),
			Line: []profile.Line{{Function: fn, Line: int64(cf.LineNumber + 1), Column: int64(cf.ColumnNumber + 1)}},
		}
		out.Location = append(out.Location, loc)
		locations[n.ID] = loc
		return loc
	}

	stackOf := func(id int) ([]*profile.Location, error) {
		var stack []*profile.Location
		seen := make(map[int]bool)
		for {
			n, ok := nodes[id]
			if !ok {
				return nil, fmt.Errorf("call tree references unknown node %d", id)
			}
			if seen[id] {
				return nil, fmt.Errorf("cycle in call tree at node %d", id)
			}
			seen[id] = true
			if n.CallFrame.FunctionName != rootFunction {
				stack = append(stack, locationOf(n))
			}
			pid, ok := parent[id]
			if !ok {
				return stack, nil
			}
			id = pid
		}
	}

	counts, wall := weights(p)
	for id := range counts {
		if _, ok := nodes[id]; !ok {
			return nil, fmt.Errorf("sample references unknown node %d", id)
		}
	}

	for i := range p.Nodes {
		id := p.Nodes[i].ID
		if counts[id] == 0 {
			continue
		}
		stack, err := stackOf(id)
		if err != nil {
			return nil, err
		}
		if len(stack) == 0 {
			continue
		}
		out.Sample = append(out.Sample, &profile.Sample{
			Location: stack,
			Value:    []int64{counts[id], wall[id]},
		})
	}

	var total int64
	for _, c := range counts {
		total += c
	}
	if total > 0 {
		out.Period = int64(p.Duration()) / total
	}

	if err := out.CheckValid(); err != nil {
		return nil, fmt.Errorf("invalid pprof profile: %w", err)
	}
	return out, nil
}

// weights returns the sample count and wall time of each node.
func weights(p *protocol.Profile) (counts, wall map[int]int64) {
	counts = make(map[int]int64)
	wall = make(map[int]int64)

	if len(p.Samples) > 0 {
		for i, id := range p.Samples {
			counts[id]++
			if i < len(p.TimeDeltas) {
				wall[id] += int64(p.TimeDeltas[i])
			}
		}
		return counts, wall
	}

	var hits int64
	for _, n := range p.Nodes {
		hits += int64(n.HitCount)
	}
	if hits == 0 {
		return counts, wall
	}
	per := int64(p.Duration()) / hits
	for _, n := range p.Nodes {
		if n.HitCount > 0 {
			counts[n.ID] = int64(n.HitCount)
			wall[n.ID] = int64(n.HitCount) * per
		}
	}
	return counts, wall
}

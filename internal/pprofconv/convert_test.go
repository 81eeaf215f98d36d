package pprofconv

import (
	"bytes"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/devprof/internal/protocol"
)

// testProfile is (root) -> main -> {work, idle}.
func testProfile() *protocol.Profile {
	return &protocol.Profile{
		Nodes: []protocol.ProfileNode{
			{ID: 1, CallFrame: protocol.CallFrame{FunctionName: "(root)"}, Children: []int{2}},
			{ID: 2, CallFrame: protocol.CallFrame{FunctionName: "main", URL: "app.js", ScriptID: "5", LineNumber: 0}, Children: []int{3, 4}},
			{ID: 3, CallFrame: protocol.CallFrame{FunctionName: "work", URL: "app.js", ScriptID: "5", LineNumber: 9, ColumnNumber: 2}},
			{ID: 4, CallFrame: protocol.CallFrame{FunctionName: "", URL: "lib.js", ScriptID: "6", LineNumber: 3}},
		},
		StartTime:  1000,
		EndTime:    1400,
		Samples:    []int{3, 3, 4, 3},
		TimeDeltas: []int{100, 100, 100, 100},
	}
}

func stackNames(s *profile.Sample) []string {
	var names []string
	for _, loc := range s.Location {
		names = append(names, loc.Line[0].Function.Name)
	}
	return names
}

func TestConvert_Samples(t *testing.T) {
	out, err := Convert(testProfile())
	require.NoError(t, err)

	require.Len(t, out.SampleType, 2)
	assert.Equal(t, "samples", out.SampleType[0].Type)
	assert.Equal(t, "microseconds", out.SampleType[1].Unit)
	assert.Equal(t, int64(1_000_000), out.TimeNanos)
	assert.Equal(t, int64(400_000), out.DurationNanos)
	assert.Equal(t, int64(100), out.Period)

	require.Len(t, out.Sample, 2)
	byLeaf := map[string]*profile.Sample{}
	for _, s := range out.Sample {
		byLeaf[stackNames(s)[0]] = s
	}

	work := byLeaf["work"]
	require.NotNil(t, work)
	assert.Equal(t, []string{"work", "main"}, stackNames(work), "root frame is dropped")
	assert.Equal(t, []int64{3, 300}, work.Value)
	assert.Equal(t, int64(10), work.Location[0].Line[0].Line, "lines are one-based")

	anon := byLeaf["(anonymous)"]
	require.NotNil(t, anon)
	assert.Equal(t, []int64{1, 100}, anon.Value)
	assert.Equal(t, "lib.js", anon.Location[0].Line[0].Function.Filename)

	assert.Len(t, out.Function, 3)
}

func TestConvert_HitCountFallback(t *testing.T) {
	p := testProfile()
	p.Samples = nil
	p.TimeDeltas = nil
	p.Nodes[2].HitCount = 3
	p.Nodes[3].HitCount = 1

	out, err := Convert(p)
	require.NoError(t, err)

	var total int64
	for _, s := range out.Sample {
		total += s.Value[1]
	}
	assert.Equal(t, int64(400), total)
}

func TestConvert_RoundTrip(t *testing.T) {
	out, err := Convert(testProfile())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, out.Write(&buf))

	parsed, err := profile.Parse(&buf)
	require.NoError(t, err)
	assert.Len(t, parsed.Sample, 2)
}

func TestConvert_Errors(t *testing.T) {
	_, err := Convert(nil)
	assert.ErrorIs(t, err, ErrEmptyProfile)

	_, err = Convert(&protocol.Profile{})
	assert.ErrorIs(t, err, ErrEmptyProfile)

	p := testProfile()
	p.Samples = []int{42}
	p.TimeDeltas = []int{1}
	_, err = Convert(p)
	assert.ErrorContains(t, err, "unknown node 42")
}

func TestWriteFolded(t *testing.T) {
	out, err := Convert(testProfile())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFolded(&buf, out, 0))
	assert.Equal(t, "main;(anonymous) 1\nmain;work 3\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteFolded(&buf, out, 1))
	assert.Equal(t, "main;(anonymous) 100\nmain;work 300\n", buf.String())

	assert.Error(t, WriteFolded(&buf, out, 2))
}

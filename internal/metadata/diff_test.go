package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompare_DetectsScalarChange(t *testing.T) {
	before := New("mix").WithBPM(120)
	after := New("mix").WithBPM(128)

	d := Compare(before, after)

	require.True(t, d.HasChanges())
	require.Len(t, d.Changes, 1)
	require.Equal(t, "BPM", d.Changes[0].Field)
	require.Equal(t, "120", d.Changes[0].Old)
	require.Equal(t, "128", d.Changes[0].New)
}

func TestCompare_NoChangesWhenIdentical(t *testing.T) {
	a := New("mix").WithBPM(120).WithTag("draft")
	b := New("mix").WithBPM(120).WithTag("draft")

	d := Compare(a, b)
	require.False(t, d.HasChanges())
}

func TestCompare_TagsAddedAndRemoved(t *testing.T) {
	before := New("mix").WithTag("draft").WithTag("v1")
	after := New("mix").WithTag("v1").WithTag("milestone")

	d := Compare(before, after)

	require.Equal(t, []string{"milestone"}, d.AddedTags)
	require.Equal(t, []string{"draft"}, d.RemovedTags)
}

func TestRenderPlain_NoColorCodes(t *testing.T) {
	d := Compare(New("m").WithBPM(100), New("m").WithBPM(110))
	out := d.RenderPlain()

	require.Contains(t, out, "BPM: 100 -> 110")
	require.NotContains(t, out, "\x1b[")
}

func TestRenderCompact_SingleLine(t *testing.T) {
	d := Compare(New("m").WithTag("draft"), New("m").WithTag("milestone"))
	out := d.RenderCompact()

	require.NotContains(t, out, "\n")
	require.Contains(t, out, "+milestone")
	require.Contains(t, out, "-draft")
}

func TestRenderPlain_NoChanges(t *testing.T) {
	d := Compare(New("m"), New("m"))
	require.Equal(t, "No changes detected", d.RenderPlain())
}

func TestJSONRoundTrip(t *testing.T) {
	m := New("mix").WithBPM(120.5).WithTag("draft")

	data, err := m.MarshalJSON()
	require.NoError(t, err)

	var got Metadata
	require.NoError(t, got.UnmarshalJSON(data))
	require.Equal(t, m, got)
}

func TestDiffJSON_ContainsBothRecords(t *testing.T) {
	before := New("m").WithBPM(100)
	after := New("m").WithBPM(110)

	data, err := DiffJSON(before, after)
	require.NoError(t, err)
	require.Contains(t, string(data), `"before"`)
	require.Contains(t, string(data), `"after"`)
}

package metadata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncode_NoMetadataReturnsMessageUnchanged(t *testing.T) {
	m := New("Simple commit")
	require.Equal(t, "Simple commit", m.Encode())
	require.NotContains(t, m.Encode(), "\n\n")
}

func TestEncode_FieldOrderIsFixed(t *testing.T) {
	m := New("Final mix").
		WithTag("milestone").
		WithKeySignature("A Minor").
		WithSampleRate(48000).
		WithBPM(128.0)

	encoded := m.Encode()

	bpmIdx := strings.Index(encoded, "BPM:")
	srIdx := strings.Index(encoded, "Sample Rate:")
	keyIdx := strings.Index(encoded, "Key:")
	tagsIdx := strings.Index(encoded, "Tags:")

	require.True(t, bpmIdx < srIdx && srIdx < keyIdx && keyIdx < tagsIdx)
}

func TestEncode_ScenarioFromSpec(t *testing.T) {
	m := New("Final mix").
		WithBPM(128.0).
		WithSampleRate(48000).
		WithKeySignature("A Minor").
		WithTag("milestone").
		WithTag("mix-v3")

	encoded := m.Encode()

	require.Contains(t, encoded, "Final mix")
	require.Contains(t, encoded, "BPM: 128")
	require.Contains(t, encoded, "Sample Rate: 48000 Hz")
	require.Contains(t, encoded, "Key: A Minor")
	require.Contains(t, encoded, "Tags: milestone, mix-v3")

	decoded := Decode(encoded)
	require.Equal(t, m, decoded)
}

func TestDecode_PlainMessageNoMetadata(t *testing.T) {
	decoded := Decode("Just a commit message")
	require.Equal(t, "Just a commit message", decoded.Message)
	require.Nil(t, decoded.BPM)
}

func TestDecode_LenientOnBadValues(t *testing.T) {
	decoded := Decode("msg\n\nBPM: not_a_number")
	require.Equal(t, "msg", decoded.Message)
	require.Nil(t, decoded.BPM)
}

func TestDecode_SampleRateToleratesMissingHzSuffix(t *testing.T) {
	decoded := Decode("msg\n\nSample Rate: 44100")
	require.NotNil(t, decoded.SampleRate)
	require.EqualValues(t, 44100, *decoded.SampleRate)
}

func TestDecode_MultilineMessagePreservesNewlines(t *testing.T) {
	msg := "Line 1\nLine 2\nLine 3\n\nBPM: 130"
	decoded := Decode(msg)
	require.Equal(t, "Line 1\nLine 2\nLine 3", decoded.Message)
}

func TestDecode_EmptyTagsDiscarded(t *testing.T) {
	decoded := Decode("msg\n\nTags: milestone, , mix")
	require.Equal(t, []string{"milestone", "mix"}, decoded.Tags)
}

func TestRoundTrip_AllFields(t *testing.T) {
	m := New("Full project export").
		WithBPM(120.5).
		WithSampleRate(96000).
		WithKeySignature("D Minor").
		WithUnits("inches").
		WithLayerCount(42).
		WithComponentCount(7).
		WithGroupCount(3).
		WithFileSize(1048576).
		WithTag("milestone").
		WithTag("mix-v3")

	require.Equal(t, m, Decode(m.Encode()))
}

func TestRoundTrip_EmptyTagsVectorEncodesWithoutTagsLine(t *testing.T) {
	m := New("No tags").WithBPM(100)
	require.NotContains(t, m.Encode(), "Tags:")
	require.Empty(t, Decode(m.Encode()).Tags)
}

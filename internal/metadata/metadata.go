// Package metadata implements the commit-metadata codec (C2): encoding
// domain-typed metadata (tempo, sample rate, key, tags, and DAW/3D-project
// counters) into backend commit-message text, parsing it back, and diffing
// two decoded records.
package metadata

import (
	"strconv"
	"strings"
)

// Metadata is a record of commit metadata. It is immutable after
// construction by convention: callers build one with New plus the With*
// builders and never mutate it afterward.
type Metadata struct {
	Message         string
	BPM             *float32
	SampleRate      *uint32
	KeySignature    *string
	Units           *string
	LayerCount      *uint32
	ComponentCount  *uint32
	GroupCount      *uint32
	FileSize        *uint64
	Tags            []string
}

// New returns a Metadata with only Message set.
func New(message string) Metadata {
	return Metadata{Message: message}
}

// WithBPM sets the tempo in beats per minute.
func (m Metadata) WithBPM(bpm float32) Metadata {
	m.BPM = &bpm
	return m
}

// WithSampleRate sets the sample rate in Hz.
func (m Metadata) WithSampleRate(rate uint32) Metadata {
	m.SampleRate = &rate
	return m
}

// WithKeySignature sets the musical key (e.g. "A Minor").
func (m Metadata) WithKeySignature(key string) Metadata {
	m.KeySignature = &key
	return m
}

// WithUnits sets the project's working units (e.g. "inches", "meters").
func (m Metadata) WithUnits(units string) Metadata {
	m.Units = &units
	return m
}

// WithLayerCount sets the layer/track count.
func (m Metadata) WithLayerCount(n uint32) Metadata {
	m.LayerCount = &n
	return m
}

// WithComponentCount sets the component/instance count.
func (m Metadata) WithComponentCount(n uint32) Metadata {
	m.ComponentCount = &n
	return m
}

// WithGroupCount sets the group count.
func (m Metadata) WithGroupCount(n uint32) Metadata {
	m.GroupCount = &n
	return m
}

// WithFileSize sets the total project file size in bytes.
func (m Metadata) WithFileSize(n uint64) Metadata {
	m.FileSize = &n
	return m
}

// WithTag appends one tag. Call repeatedly to add multiple tags.
func (m Metadata) WithTag(tag string) Metadata {
	m.Tags = append(append([]string(nil), m.Tags...), tag)
	return m
}

// field labels, fixed encode order.
const (
	labelBPM        = "BPM:"
	labelSampleRate = "Sample Rate:"
	labelKey        = "Key:"
	labelUnits      = "Units:"
	labelLayers     = "Layers:"
	labelComponents = "Components:"
	labelGroups     = "Groups:"
	labelFileSize   = "File Size:"
	labelTags       = "Tags:"
)

// Encode renders m as backend commit-message text. Field order is fixed
// (BPM, Sample Rate, Key, Units, Layers, Components, Groups, File Size,
// Tags) so diffs and reviews are stable across commits. The blank line
// between message and metadata block is written iff at least one metadata
// line is written; a record with no optional fields encodes to exactly its
// message.
func (m Metadata) Encode() string {
	var lines []string

	if m.BPM != nil {
		lines = append(lines, labelBPM+" "+formatFloat32(*m.BPM))
	}
	if m.SampleRate != nil {
		lines = append(lines, labelSampleRate+" "+strconv.FormatUint(uint64(*m.SampleRate), 10)+" Hz")
	}
	if m.KeySignature != nil {
		lines = append(lines, labelKey+" "+*m.KeySignature)
	}
	if m.Units != nil {
		lines = append(lines, labelUnits+" "+*m.Units)
	}
	if m.LayerCount != nil {
		lines = append(lines, labelLayers+" "+strconv.FormatUint(uint64(*m.LayerCount), 10))
	}
	if m.ComponentCount != nil {
		lines = append(lines, labelComponents+" "+strconv.FormatUint(uint64(*m.ComponentCount), 10))
	}
	if m.GroupCount != nil {
		lines = append(lines, labelGroups+" "+strconv.FormatUint(uint64(*m.GroupCount), 10))
	}
	if m.FileSize != nil {
		lines = append(lines, labelFileSize+" "+strconv.FormatUint(*m.FileSize, 10))
	}
	if len(m.Tags) > 0 {
		lines = append(lines, labelTags+" "+strings.Join(m.Tags, ", "))
	}

	if len(lines) == 0 {
		return m.Message
	}

	return m.Message + "\n\n" + strings.Join(lines, "\n")
}

// Decode parses backend commit-message text produced by Encode, or a plain
// message with no metadata block, back into a Metadata. Parsing is lenient:
// a field with an unparseable value (e.g. "BPM: not_a_number") is left
// absent rather than producing an error. All lines preceding the first
// recognized metadata label constitute the message, with internal newlines
// preserved.
func Decode(text string) Metadata {
	lines := strings.Split(text, "\n")

	var md Metadata
	var messageLines []string
	inMetadata := false

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, labelBPM):
			inMetadata = true
			if v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, labelBPM)), 32); err == nil {
				f := float32(v)
				md.BPM = &f
			}
		case strings.HasPrefix(line, labelSampleRate):
			inMetadata = true
			raw := strings.TrimSpace(strings.TrimPrefix(line, labelSampleRate))
			raw = strings.TrimSuffix(raw, " Hz")
			if v, err := strconv.ParseUint(raw, 10, 32); err == nil {
				sr := uint32(v)
				md.SampleRate = &sr
			}
		case strings.HasPrefix(line, labelKey):
			inMetadata = true
			key := strings.TrimSpace(strings.TrimPrefix(line, labelKey))
			md.KeySignature = &key
		case strings.HasPrefix(line, labelUnits):
			inMetadata = true
			units := strings.TrimSpace(strings.TrimPrefix(line, labelUnits))
			md.Units = &units
		case strings.HasPrefix(line, labelLayers):
			inMetadata = true
			if v, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, labelLayers)), 10, 32); err == nil {
				n := uint32(v)
				md.LayerCount = &n
			}
		case strings.HasPrefix(line, labelComponents):
			inMetadata = true
			if v, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, labelComponents)), 10, 32); err == nil {
				n := uint32(v)
				md.ComponentCount = &n
			}
		case strings.HasPrefix(line, labelGroups):
			inMetadata = true
			if v, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, labelGroups)), 10, 32); err == nil {
				n := uint32(v)
				md.GroupCount = &n
			}
		case strings.HasPrefix(line, labelFileSize):
			inMetadata = true
			if v, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, labelFileSize)), 10, 64); err == nil {
				md.FileSize = &v
			}
		case strings.HasPrefix(line, labelTags):
			inMetadata = true
			raw := strings.TrimPrefix(line, labelTags)
			for _, tag := range strings.Split(raw, ",") {
				tag = strings.TrimSpace(tag)
				if tag != "" {
					md.Tags = append(md.Tags, tag)
				}
			}
		case !inMetadata:
			messageLines = append(messageLines, line)
		}
	}

	for len(messageLines) > 0 && strings.TrimSpace(messageLines[0]) == "" {
		messageLines = messageLines[1:]
	}
	for len(messageLines) > 0 && strings.TrimSpace(messageLines[len(messageLines)-1]) == "" {
		messageLines = messageLines[:len(messageLines)-1]
	}

	md.Message = strings.Join(messageLines, "\n")

	return md
}

// formatFloat32 mirrors Rust's default float Display: the shortest decimal
// representation that round-trips, with a trailing ".0" dropped (128.0
// prints as "128", matching the backend convention the codec round-trips
// against).
func formatFloat32(f float32) string {
	s := strconv.FormatFloat(float64(f), 'f', -1, 32)
	return s
}

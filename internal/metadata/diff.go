package metadata

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// FieldChange records one field's old and new textual value. Old is empty
// when the field was absent before; New is empty when it was removed.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// Diff is the structural difference between two Metadata records: changed
// scalar fields and added/removed tags.
type Diff struct {
	Changes     []FieldChange
	AddedTags   []string
	RemovedTags []string
}

// HasChanges reports whether the diff is non-empty.
func (d Diff) HasChanges() bool {
	return len(d.Changes) > 0 || len(d.AddedTags) > 0 || len(d.RemovedTags) > 0
}

// Compare produces the structural diff between a (before) and b (after). The
// comparison order for scalar fields follows the encode field order so
// rendered diffs read the same way commits do.
func Compare(a, b Metadata) Diff {
	var d Diff

	addIfChanged := func(field string, oldv, newv *string) {
		oldVal, newVal := derefOr(oldv, ""), derefOr(newv, "")
		if oldVal != newVal {
			d.Changes = append(d.Changes, FieldChange{Field: field, Old: oldVal, New: newVal})
		}
	}

	addIfChanged("BPM", floatStr(a.BPM), floatStr(b.BPM))
	addIfChanged("Sample Rate", uint32Str(a.SampleRate), uint32Str(b.SampleRate))
	addIfChanged("Key", a.KeySignature, b.KeySignature)
	addIfChanged("Units", a.Units, b.Units)
	addIfChanged("Layers", uint32Str(a.LayerCount), uint32Str(b.LayerCount))
	addIfChanged("Components", uint32Str(a.ComponentCount), uint32Str(b.ComponentCount))
	addIfChanged("Groups", uint32Str(a.GroupCount), uint32Str(b.GroupCount))
	addIfChanged("File Size", uint64Str(a.FileSize), uint64Str(b.FileSize))

	before := toSet(a.Tags)
	after := toSet(b.Tags)

	for _, tag := range b.Tags {
		if !before[tag] {
			d.AddedTags = append(d.AddedTags, tag)
		}
	}
	for _, tag := range a.Tags {
		if !after[tag] {
			d.RemovedTags = append(d.RemovedTags, tag)
		}
	}

	sort.Strings(d.AddedTags)
	sort.Strings(d.RemovedTags)

	return d
}

func toSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	return set
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func floatStr(f *float32) *string {
	if f == nil {
		return nil
	}
	s := formatFloat32(*f)
	return &s
}

func uint32Str(n *uint32) *string {
	if n == nil {
		return nil
	}
	s := fmt.Sprintf("%d", *n)
	return &s
}

func uint64Str(n *uint64) *string {
	if n == nil {
		return nil
	}
	s := fmt.Sprintf("%d", *n)
	return &s
}

// RenderPlain renders the diff as multi-line plain text, one change per
// line, with no ANSI color codes.
func (d Diff) RenderPlain() string {
	return d.render(false)
}

// RenderColored renders the diff the same way RenderPlain does but with
// ANSI colors: changed values are yellow, added tags green, removed tags
// red. Colors are disabled automatically when stdout isn't a terminal
// (see [color.NoColor]).
func (d Diff) RenderColored() string {
	return d.render(true)
}

func (d Diff) render(colored bool) string {
	if !d.HasChanges() {
		return "No changes detected"
	}

	var b strings.Builder
	b.WriteString("METADATA DIFF\n")

	for _, c := range d.Changes {
		line := fmt.Sprintf("  * %s: %s -> %s\n", c.Field, valueOrNone(c.Old), valueOrNone(c.New))
		if colored {
			line = fmt.Sprintf("  * %s: %s\n", c.Field, color.YellowString("%s -> %s", valueOrNone(c.Old), valueOrNone(c.New)))
		}
		b.WriteString(line)
	}

	for _, tag := range d.AddedTags {
		if colored {
			b.WriteString(fmt.Sprintf("  + %s\n", color.GreenString(tag)))
		} else {
			b.WriteString(fmt.Sprintf("  + %s\n", tag))
		}
	}

	for _, tag := range d.RemovedTags {
		if colored {
			b.WriteString(fmt.Sprintf("  - %s\n", color.RedString(tag)))
		} else {
			b.WriteString(fmt.Sprintf("  - %s\n", tag))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// RenderCompact renders the diff as a single line, suitable for activity
// feeds: "BPM 120->128, +milestone, -draft".
func (d Diff) RenderCompact() string {
	if !d.HasChanges() {
		return "no changes"
	}

	var parts []string
	for _, c := range d.Changes {
		parts = append(parts, fmt.Sprintf("%s %s->%s", c.Field, valueOrNone(c.Old), valueOrNone(c.New)))
	}
	for _, tag := range d.AddedTags {
		parts = append(parts, "+"+tag)
	}
	for _, tag := range d.RemovedTags {
		parts = append(parts, "-"+tag)
	}

	return strings.Join(parts, ", ")
}

// jsonRecord mirrors Metadata field for field with snake_case JSON names;
// optional fields stay pointers so that absent values are omitted.
type jsonRecord struct {
	Message        string   `json:"message"`
	BPM            *float32 `json:"bpm,omitempty"`
	SampleRate     *uint32  `json:"sample_rate,omitempty"`
	KeySignature   *string  `json:"key_signature,omitempty"`
	Units          *string  `json:"units,omitempty"`
	LayerCount     *uint32  `json:"layer_count,omitempty"`
	ComponentCount *uint32  `json:"component_count,omitempty"`
	GroupCount     *uint32  `json:"group_count,omitempty"`
	FileSize       *uint64  `json:"file_size,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

func toJSONRecord(m Metadata) jsonRecord {
	return jsonRecord{
		Message: m.Message, BPM: m.BPM, SampleRate: m.SampleRate, KeySignature: m.KeySignature,
		Units: m.Units, LayerCount: m.LayerCount, ComponentCount: m.ComponentCount,
		GroupCount: m.GroupCount, FileSize: m.FileSize, Tags: m.Tags,
	}
}

// MarshalJSON encodes m verbatim, omitting absent optional fields.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(toJSONRecord(m))
}

// UnmarshalJSON decodes m from the wire format produced by MarshalJSON.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var rec jsonRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	m.Message = rec.Message
	m.BPM = rec.BPM
	m.SampleRate = rec.SampleRate
	m.KeySignature = rec.KeySignature
	m.Units = rec.Units
	m.LayerCount = rec.LayerCount
	m.ComponentCount = rec.ComponentCount
	m.GroupCount = rec.GroupCount
	m.FileSize = rec.FileSize
	m.Tags = rec.Tags

	return nil
}

// DiffJSON renders both records verbatim as a JSON object
// {"before": ..., "after": ...} for external tooling.
func DiffJSON(before, after Metadata) ([]byte, error) {
	return json.Marshal(struct {
		Before Metadata `json:"before"`
		After  Metadata `json:"after"`
	}{Before: before, After: after})
}

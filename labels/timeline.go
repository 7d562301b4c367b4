// Package labels maps playback time to labels.
//
// A Timeline is an immutable, sorted list of transition points parsed from a
// sparse timestamp -> label map such as
//
//	{"00:00": "negative", "02:13": "positive"}
//
// A Cursor walks a Timeline with non-decreasing playback times and resolves
// the active label in amortized O(1) per call.
package labels

import (
	"fmt"
	"slices"
	"sort"

	"github.com/RyanBlaney/micmon/errdefs"
)

// Entry is a label transition point.
type Entry struct {
	TimestampMs int64  `json:"timestamp_ms"`
	Label       string `json:"label"`
}

// Timeline is an immutable sequence of entries with strictly increasing timestamps.
type Timeline struct {
	entries []Entry
}

// NewTimeline builds a timeline from a timestamp -> label map.
func NewTimeline(raw map[string]string) (*Timeline, error) {
	byMs := make(map[int64]string, len(raw))
	for ts, label := range raw {
		ms, err := ParseTimestamp(ts)
		if err != nil {
			return nil, err
		}
		if prev, dup := byMs[ms]; dup && prev != label {
			return nil, errdefs.Configuration("labels.NewTimeline",
				fmt.Sprintf("conflicting labels %q and %q at %d ms", prev, label, ms), nil)
		}
		byMs[ms] = label
	}

	entries := make([]Entry, 0, len(byMs))
	for ms, label := range byMs {
		entries = append(entries, Entry{TimestampMs: ms, Label: label})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].TimestampMs < entries[j].TimestampMs })

	return &Timeline{entries: entries}, nil
}

// FromEntries builds a timeline from entries that must already be strictly increasing.
func FromEntries(entries []Entry) (*Timeline, error) {
	for i := 1; i < len(entries); i++ {
		if entries[i].TimestampMs <= entries[i-1].TimestampMs {
			return nil, errdefs.Configuration("labels.FromEntries",
				fmt.Sprintf("timestamps not strictly increasing at index %d", i), nil)
		}
	}
	return &Timeline{entries: slices.Clone(entries)}, nil
}

// Len returns the number of transition points.
func (t *Timeline) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Entries returns a copy of the transition points.
func (t *Timeline) Entries() []Entry {
	if t == nil {
		return nil
	}
	return slices.Clone(t.entries)
}

// Vocabulary returns the sorted set of labels used by the timeline.
func (t *Timeline) Vocabulary() *Vocabulary {
	names := make([]string, 0, t.Len())
	if t != nil {
		for _, e := range t.entries {
			names = append(names, e.Label)
		}
	}
	return NewVocabulary(names)
}

// Cursor returns a fresh cursor positioned before the first entry.
func (t *Timeline) Cursor() *Cursor {
	return &Cursor{timeline: t}
}

// Cursor resolves the active label for monotonically non-decreasing times.
// Once an entry has been passed it is never revisited.
type Cursor struct {
	timeline *Timeline
	next     int
	current  string
	set      bool
}

// Resolve advances past every entry with timestamp <= nowMs and returns the
// label of the last one adopted. ok is false until the first entry is reached.
func (c *Cursor) Resolve(nowMs int64) (label string, ok bool) {
	if c.timeline != nil {
		entries := c.timeline.entries
		for c.next < len(entries) && entries[c.next].TimestampMs <= nowMs {
			c.current = entries[c.next].Label
			c.set = true
			c.next++
		}
	}
	return c.current, c.set
}

// Consumed returns how many entries the cursor has passed.
func (c *Cursor) Consumed() int {
	return c.next
}

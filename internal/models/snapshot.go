package models

import (
	"sort"
)

// Entry is one keyed reading of a Snapshot
type Entry struct {
	Key     string  `json:"key"`
	Reading Reading `json:"reading"`
}

// Snapshot is a point-in-time, read-only view of a user's readings,
// ordered by store key. Store keys sort consistently with timestamps.
type Snapshot struct {
	entries []Entry
}

// NewSnapshot builds a snapshot from store key to reading.
func NewSnapshot(readings map[string]Reading) Snapshot {
	entries := make([]Entry, 0, len(readings))
	for k, r := range readings {
		entries = append(entries, Entry{Key: k, Reading: r})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return Snapshot{entries: entries}
}

// Len returns the number of entries
func (s Snapshot) Len() int { return len(s.entries) }

// IsEmpty reports whether the snapshot has no entries
func (s Snapshot) IsEmpty() bool { return len(s.entries) == 0 }

// Entries returns a copy of the entries in key order
func (s Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Latest returns the entry with the greatest key.
func (s Snapshot) Latest() (Entry, bool) {
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// Readings returns the readings ordered by timestamp. Readings sharing a
// timestamp keep their key order.
func (s Snapshot) Readings() []Reading {
	out := make([]Reading, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Reading
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

package live

import "github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"

// Transcript merges streamed fragments into one entry per speaker turn.
type Transcript struct {
	entries []types.TranscriptEntry
	sealed  bool
}

// Add appends text to the last entry when it belongs to the same speaker
// and the turn is still open; otherwise it starts a new entry.
func (t *Transcript) Add(speaker types.Speaker, text string) {
	if n := len(t.entries); n > 0 && !t.sealed && t.entries[n-1].Speaker == speaker {
		t.entries[n-1].Text += text
		return
	}
	t.entries = append(t.entries, types.TranscriptEntry{Speaker: speaker, Text: text})
	t.sealed = false
}

// Seal ends the current turn. Existing entries are kept.
func (t *Transcript) Seal() {
	t.sealed = true
}

// Reset drops every entry.
func (t *Transcript) Reset() {
	t.entries = nil
	t.sealed = false
}

// Entries returns a copy of the entries.
func (t *Transcript) Entries() []types.TranscriptEntry {
	out := make([]types.TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Package live manages a bidirectional audio session with a realtime model.
//
// A Manager owns one session at a time. Start acquires the microphone, the
// output device (conversation mode only) and the remote stream, in that
// order, releasing whatever was acquired if a later step fails. While open,
// three goroutines cooperate:
//
//   - the pump reads capture frames, encodes them as 16 kHz PCM and sends
//     them on the stream;
//   - the reader turns stream receives into tagged events;
//   - the dispatch loop is the only writer of transcript and playback state.
//
// Incoming audio is scheduled back to back on the output device using a
// running cursor; an interruption stops every pending source and resets the
// cursor to zero. Transcript fragments are merged into one growing entry per
// speaker turn. In transcription mode only user fragments are kept and are
// concatenated into a single text buffer.
//
// Stop is idempotent and is also triggered by remote close, stream errors
// and cancellation of the context passed to Start.
package live

// Package session keeps conversation transcripts in memory for the lifetime
// of the process.
//
// Invariants:
// - Every transcript starts with the system message fixed at creation; it is
//   never removed.
// - Truncation removes whole messages from the front only and always makes
//   progress.
// - Identities come from a monotonic counter and are never reused.
// - At most one response stream runs per session at a time.
//
// Usage:
//
//	store := session.NewStore(session.StoreConfig{SystemPrompt: "You are helpful."})
//	sess := store.Create()
//	sess.AddUserMessage("hello")
//	_ = sess.Messages()
package session

// Package prompt renders session transcripts into engine prompts and keeps
// them inside the engine's context budget by truncating the oldest history.
package prompt

// Package gemini implements job.Analyzer on top of Google's Gemini API.
//
// An analysis is two calls: a generation call that describes the voice in
// an inline audio recording, followed by an embedding call that turns the
// description into the vector stored for the artifact.
//
// Transient API failures are retried with exponential backoff. Blocked or
// malformed responses are not retried.
package gemini

// Package domain contains the core entities of the media pipeline: the
// uploaded Artifact and the ProcessingStatus state machine that tracks it.
// It is independent of any storage, transport or execution mechanism.
package domain

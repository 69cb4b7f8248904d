package domain

// ProcessingStatus is the lifecycle state of an uploaded artifact.
type ProcessingStatus string

// Possible processing status values
const (
	StatusPending             ProcessingStatus = "PENDING"
	StatusUploaded            ProcessingStatus = "UPLOADED"
	StatusProcessing          ProcessingStatus = "PROCESSING"
	StatusConverting          ProcessingStatus = "CONVERTING"
	StatusAnalyzing           ProcessingStatus = "ANALYZING"
	StatusAnalysisPending     ProcessingStatus = "ANALYSIS_PENDING"
	StatusImageOptimizing     ProcessingStatus = "IMAGE_OPTIMIZING"
	StatusThumbnailGenerating ProcessingStatus = "THUMBNAIL_GENERATING"
	StatusCompleted           ProcessingStatus = "COMPLETED"
	StatusVectorCompleted     ProcessingStatus = "VECTOR_COMPLETED"
	StatusFailed              ProcessingStatus = "FAILED"
)

// Stage ranks a status within one processing pass. A pass only ever moves
// to a strictly higher stage.
type Stage int

// Stages of a processing pass.
const (
	StageUnknown Stage = iota - 1
	StageQueued
	StageReady
	StageRunning
	StageFinished
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []ProcessingStatus{
	StatusPending,
	StatusUploaded,
	StatusProcessing,
	StatusConverting,
	StatusAnalyzing,
	StatusAnalysisPending,
	StatusImageOptimizing,
	StatusThumbnailGenerating,
	StatusCompleted,
	StatusVectorCompleted,
	StatusFailed,
}

// Stage returns the pass stage of the status, or StageUnknown.
func (s ProcessingStatus) Stage() Stage {
	switch s {
	case StatusPending:
		return StageQueued
	case StatusUploaded:
		return StageReady
	case StatusProcessing, StatusConverting, StatusAnalyzing, StatusAnalysisPending,
		StatusImageOptimizing, StatusThumbnailGenerating:
		return StageRunning
	case StatusCompleted, StatusVectorCompleted, StatusFailed:
		return StageFinished
	default:
		return StageUnknown
	}
}

// Valid reports whether s is a known status.
func (s ProcessingStatus) Valid() bool {
	return s.Stage() != StageUnknown
}

// IsInProgress reports whether a job currently owns the artifact.
// ANALYSIS_PENDING waits for the analysis job and is owned by nobody.
func (s ProcessingStatus) IsInProgress() bool {
	return s.Stage() == StageRunning && s != StatusAnalysisPending
}

// InProgressStatuses lists the statuses in which a job owns the artifact.
func InProgressStatuses() []ProcessingStatus {
	var out []ProcessingStatus
	for _, s := range AllStatuses {
		if s.IsInProgress() {
			out = append(out, s)
		}
	}
	return out
}

// IsTerminal reports whether the status ends a processing pass.
func (s ProcessingStatus) IsTerminal() bool {
	return s.Stage() == StageFinished
}

// CanTransition reports whether an artifact may move from one status to
// another. Within a pass transitions only move forward. FAILED may re-enter
// PENDING for a retry. A finished conversion hands over to analysis through
// ANALYSIS_PENDING.
func CanTransition(from, to ProcessingStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}

	switch {
	case from == StatusFailed && to == StatusPending:
		return true
	case from.IsTerminal():
		return false
	case to == StatusAnalysisPending:
		return from.IsInProgress()
	case from == StatusAnalysisPending && to == StatusAnalyzing:
		return true
	}

	return to.Stage() > from.Stage()
}

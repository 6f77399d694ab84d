package tasks

import "fmt"

// ProgressUpdate represents a progress event during a pipeline run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Pipeline phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Pipeline phase enumeration
type Phase int

const (
	PhaseExtract Phase = iota
	PhaseTransform
	PhaseLoad
	PhaseCheck
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseExtract:
		return "extract"
	case PhaseTransform:
		return "transform"
	case PhaseLoad:
		return "load"
	case PhaseCheck:
		return "check"
	case PhaseDone:
		return "done"
	default:
		return ""
	}
}

func extractingUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: PhaseExtract, Message: "Extracting listening data from Spotify..."}
}

func transformingUpdate(counts ExtractCounts) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseTransform,
		Message: fmt.Sprintf("Normalizing %d recent plays and %d top tracks...", counts.Recent, counts.TopTracks),
		Data:    counts,
	}
}

func loadingUpdate(dropped int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseLoad,
		Message: fmt.Sprintf("Loading normalized batch (%d records dropped)...", dropped),
	}
}

func checkingUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: PhaseCheck, Message: "Running post-load quality checks..."}
}

func doneUpdate(summary *RunSummary) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseDone,
		Message: fmt.Sprintf("Run %s finished: %s", summary.RunID, summary.State),
		Data:    summary,
	}
}

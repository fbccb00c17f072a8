package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchPlaylists Phase = iota
	ExportPlaylist
	IngestGraph
)

func (p Phase) String() string {
	switch p {
	case FetchPlaylists:
		return "fetch_playlists"
	case ExportPlaylist:
		return "export_playlist"
	case IngestGraph:
		return "ingest_graph"
	default:
		return ""
	}
}

func fetchPlaylistsUpdate(service string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching playlists from %s...", service),
	}
}

func exportingPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exported: %s", step, total, name),
	}
}

func ingestingPlaylistUpdate(step, total int, name string, songs int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   IngestGraph,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Ingesting %s (%d songs)...", step, total, name, songs),
	}
}

func ingestCompletedUpdate(step, total int, name string, ingested int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   IngestGraph,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d songs)", step, total, name, ingested),
		Data:    ingested,
	}
}

func ingestFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   IngestGraph,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}

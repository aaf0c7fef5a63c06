// Package models defines the core data structures shared by the session
// manager, the workflow orchestrator, and the API client.
package models

// Identity represents the authenticated user as returned by the
// analysis service and persisted locally between runs.
type Identity struct {
	// ID is the service-assigned identifier. May be empty for
	// records created before the service started returning ids.
	ID string `json:"id,omitempty"`
	// Name is the display name chosen at registration.
	Name string `json:"name"`
	// Email is the login email. Always present on a valid record.
	Email string `json:"email"`
}

// UploadedDocument tracks the file currently driven through the
// upload/analyze cycle. FileID, ChunkIDs and TotalChunks stay empty
// until the upload response arrives.
type UploadedDocument struct {
	// Path is the local path of the selected file.
	Path string `json:"path"`
	// FileID is the service-assigned identifier of the uploaded file.
	FileID string `json:"file_id"`
	// ChunkIDs lists the server-created chunks in server order.
	ChunkIDs []string `json:"chunk_ids"`
	// TotalChunks is the chunk count reported by the upload response.
	TotalChunks int `json:"total_chunks"`
}

// AnalysisResult holds the outcome of analyzing the first chunk of an
// uploaded document. Immutable once populated; replaced wholesale when
// a new file is selected.
type AnalysisResult struct {
	// DocumentsProcessed is the total number of chunks the upload produced.
	DocumentsProcessed int `json:"documents_processed"`
	// SentimentScore is the rule-based score of the analyzed chunk.
	SentimentScore float64 `json:"sentiment_score"`
	// PatternsFound is the flattened union of all pattern categories,
	// in server-supplied order. Not deduplicated, not sorted.
	PatternsFound []string `json:"patterns_found"`
}

// SearchResult is one server-ranked hit from a keyword search.
type SearchResult struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// State is the control state of the workflow orchestrator.
type State int

const (
	// StateIdle means no file has been selected yet.
	StateIdle State = iota
	// StateFileSelected means a file is chosen but not uploaded.
	StateFileSelected
	// StateUploading means the upload request is in flight.
	StateUploading
	// StateUploaded means the upload finished and analysis is about to start.
	StateUploaded
	// StateAnalyzing means the analyze request is in flight.
	StateAnalyzing
	// StateComplete means analysis finished; search/export/summary are available.
	StateComplete
	// StateFailed means the last upload/analyze cycle ended in an error.
	StateFailed
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFileSelected:
		return "file_selected"
	case StateUploading:
		return "uploading"
	case StateUploaded:
		return "uploaded"
	case StateAnalyzing:
		return "analyzing"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

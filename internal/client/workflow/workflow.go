// Package workflow implements the document processing orchestrator: the
// state machine driving the upload, analyze, search, export and summary
// sequence against the analysis service.
//
// The orchestrator owns all per-document state. Views forward intents
// (select, start, search, ...) and render from the accessors; they hold
// no business state of their own. User-visible notices go through the
// injected Notifier so presentation stays outside this package.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avetrov/textsift/internal/client/api"
	"github.com/avetrov/textsift/internal/errs"
	"github.com/avetrov/textsift/internal/models"
)

// searchLimit caps the result count requested from the service.
const searchLimit = 20

// exportSuffix completes the download filename derived from the file id.
const exportSuffix = "_chunks.csv"

// API is the slice of the service client the orchestrator drives.
type API interface {
	Upload(ctx context.Context, filename string, content io.Reader) (api.UploadResponse, error)
	Analyze(ctx context.Context, chunkID string) (api.AnalyzeResponse, error)
	Search(ctx context.Context, query, fileID string, limit int) ([]models.SearchResult, error)
	Export(ctx context.Context, fileID string) ([]byte, error)
	EmailSummary(ctx context.Context, fileID, toEmail string) (string, error)
}

// Notifier receives user-facing notices. Notify carries routine
// confirmations, Alert carries failures needing attention.
type Notifier interface {
	Notify(msg string)
	Alert(msg string)
}

// BlobSaver persists an exported artifact under the given filename.
type BlobSaver interface {
	Save(filename string, data []byte) error
}

// DirSaver saves blobs into a fixed directory.
type DirSaver struct {
	Dir string
}

// Save writes data to Dir/filename.
func (d DirSaver) Save(filename string, data []byte) error {
	return os.WriteFile(filepath.Join(d.Dir, filename), data, 0o644)
}

// Orchestrator is the per-document workflow state machine.
//
// Exactly one document is live at a time. Selecting a new file discards
// every piece of derived state and rotates the document tag; responses
// from calls issued under an older tag are dropped on arrival, so stale
// results can never be shown against the current file.
type Orchestrator struct {
	mu       sync.Mutex
	api      API
	notify   Notifier
	saver    BlobSaver
	log      *zap.Logger
	validate *validator.Validate

	state   models.State
	doc     models.UploadedDocument
	docTag  string
	result  *models.AnalysisResult
	hits    []models.SearchResult
	lastErr string
}

// New constructs an Orchestrator in StateIdle.
func New(apiClient API, notifier Notifier, saver BlobSaver, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		api:      apiClient,
		notify:   notifier,
		saver:    saver,
		log:      logger,
		validate: validator.New(),
		state:    models.StateIdle,
	}
}

// SelectFile makes path the live document and resets all derived state.
// Valid from any state; a selection during an outstanding upload or
// analyze call orphans that call rather than aborting it.
func (o *Orchestrator) SelectFile(path string) error {
	if path == "" {
		o.notify.Alert("Please provide a file path.")
		return fmt.Errorf("%w: empty file path", errs.ErrValidation)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.doc = models.UploadedDocument{Path: path}
	o.docTag = uuid.NewString()
	o.result = nil
	o.hits = nil
	o.lastErr = ""
	o.state = models.StateFileSelected

	o.log.Debug("file selected", zap.String("path", path), zap.String("tag", o.docTag))
	return nil
}

// StartAnalysis runs the upload and first-chunk analyze cycle for the
// selected file, ending in StateComplete or StateFailed. Re-entrant
// calls while a cycle is in flight are dropped without issuing a second
// request. From StateFailed it retries the same file, clearing the
// previous error.
func (o *Orchestrator) StartAnalysis(ctx context.Context) error {
	o.mu.Lock()

	switch o.state {
	case models.StateUploading, models.StateUploaded, models.StateAnalyzing:
		o.mu.Unlock()
		o.log.Debug("start ignored: cycle already in flight", zap.Stringer("state", o.state))
		return nil
	case models.StateIdle:
		o.mu.Unlock()
		o.notify.Alert("Please select a file first.")
		return fmt.Errorf("%w: no file selected", errs.ErrValidation)
	}

	path := o.doc.Path
	tag := o.docTag

	f, err := os.Open(path)
	if err != nil {
		o.mu.Unlock()
		o.notify.Alert(fmt.Sprintf("Cannot read file: %v", err))
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	defer f.Close()

	o.lastErr = ""
	o.result = nil
	o.state = models.StateUploading
	o.mu.Unlock()

	upload, err := o.api.Upload(ctx, filepath.Base(path), f)

	o.mu.Lock()
	if tag != o.docTag {
		o.mu.Unlock()
		o.log.Debug("discarding stale upload response", zap.String("tag", tag))
		return nil
	}
	if err != nil {
		o.fail(fmt.Sprintf("Upload failed: %v", err))
		o.mu.Unlock()
		return err
	}
	if len(upload.ChunkIDs) == 0 {
		o.fail("Upload failed or no chunks created.")
		o.mu.Unlock()
		return fmt.Errorf("%w: no chunks created", errs.ErrServerRejected)
	}

	o.doc.FileID = upload.FileID
	o.doc.ChunkIDs = upload.ChunkIDs
	o.doc.TotalChunks = upload.TotalChunks
	o.state = models.StateUploaded

	// Only the first chunk is analyzed client-side; the rest are
	// retained for search and export, which run server-side.
	firstChunk := upload.ChunkIDs[0]
	o.state = models.StateAnalyzing
	o.mu.Unlock()

	analysis, err := o.api.Analyze(ctx, firstChunk)

	o.mu.Lock()
	defer o.mu.Unlock()
	if tag != o.docTag {
		o.log.Debug("discarding stale analyze response", zap.String("tag", tag))
		return nil
	}
	if err != nil {
		o.fail(fmt.Sprintf("Analysis failed: %v", err))
		return err
	}

	o.result = &models.AnalysisResult{
		DocumentsProcessed: upload.TotalChunks,
		SentimentScore:     analysis.Score,
		PatternsFound:      analysis.Patterns,
	}
	o.state = models.StateComplete
	o.notify.Notify(fmt.Sprintf("Processing complete. File ID: %s", upload.FileID))
	o.log.Info("analysis complete",
		zap.String("file_id", upload.FileID),
		zap.Int("total_chunks", upload.TotalChunks),
		zap.Float64("score", analysis.Score))
	return nil
}

// Search runs a keyword query against the uploaded document. Empty
// query or missing file id: no request is issued and prior results are
// untouched. On success the result list is replaced wholesale, in
// server rank order; on failure the notice carries the server message
// and prior results survive.
func (o *Orchestrator) Search(ctx context.Context, query string) error {
	o.mu.Lock()
	fileID := o.doc.FileID
	tag := o.docTag
	o.mu.Unlock()

	if query == "" || fileID == "" {
		return nil
	}

	hits, err := o.api.Search(ctx, query, fileID, searchLimit)
	if err != nil {
		o.notify.Alert(userMessage(err, "Search failed."))
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if tag != o.docTag {
		o.log.Debug("discarding stale search response", zap.String("tag", tag))
		return nil
	}
	o.hits = hits
	return nil
}

// ExportDocument fetches the CSV export and saves it locally as
// {file_id}_chunks.csv. No state transition either way.
func (o *Orchestrator) ExportDocument(ctx context.Context) error {
	o.mu.Lock()
	fileID := o.doc.FileID
	o.mu.Unlock()

	if fileID == "" {
		return nil
	}

	blob, err := o.api.Export(ctx, fileID)
	if err != nil {
		o.notify.Alert("Failed to export CSV.")
		return err
	}

	filename := fileID + exportSuffix
	if err := o.saver.Save(filename, blob); err != nil {
		o.notify.Alert("Failed to export CSV.")
		return fmt.Errorf("save export: %w", err)
	}
	o.notify.Notify(fmt.Sprintf("Export saved as %s", filename))
	return nil
}

// SendSummary asks the service to email the processing summary. No-op
// without a file id or recipient; malformed recipients are rejected
// before any request. No state transition either way.
func (o *Orchestrator) SendSummary(ctx context.Context, toEmail string) error {
	o.mu.Lock()
	fileID := o.doc.FileID
	o.mu.Unlock()

	if fileID == "" || toEmail == "" {
		return nil
	}
	if err := o.validate.Var(toEmail, "email"); err != nil {
		o.notify.Alert("Please enter a valid email address.")
		return fmt.Errorf("%w: malformed recipient email", errs.ErrValidation)
	}

	msg, err := o.api.EmailSummary(ctx, fileID, toEmail)
	if err != nil {
		o.notify.Alert(userMessage(err, "Failed to send email."))
		return err
	}
	if msg == "" {
		msg = "Email sent!"
	}
	o.notify.Notify(msg)
	return nil
}

// State returns the current control state.
func (o *Orchestrator) State() models.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Document returns a copy of the live document record.
func (o *Orchestrator) Document() models.UploadedDocument {
	o.mu.Lock()
	defer o.mu.Unlock()

	doc := o.doc
	doc.ChunkIDs = append([]string(nil), o.doc.ChunkIDs...)
	return doc
}

// Result returns the analysis result, or nil before completion.
func (o *Orchestrator) Result() *models.AnalysisResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.result == nil {
		return nil
	}
	res := *o.result
	res.PatternsFound = append([]string(nil), o.result.PatternsFound...)
	return &res
}

// SearchResults returns the current hits in server rank order.
func (o *Orchestrator) SearchResults() []models.SearchResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.SearchResult(nil), o.hits...)
}

// LastError returns the message recorded by the last failed cycle.
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// fail records the error message, moves to StateFailed and alerts the
// user. Caller must hold o.mu.
func (o *Orchestrator) fail(msg string) {
	o.state = models.StateFailed
	o.lastErr = msg
	o.notify.Alert(msg)
	o.log.Warn("workflow failed", zap.String("reason", msg))
}

// userMessage strips the wrap prefix down to something presentable,
// falling back to a generic notice for transport-level failures.
func userMessage(err error, generic string) string {
	if errors.Is(err, errs.ErrServerRejected) {
		return err.Error()
	}
	return generic
}

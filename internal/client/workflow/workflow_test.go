package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/avetrov/textsift/internal/client/api"
	"github.com/avetrov/textsift/internal/errs"
	"github.com/avetrov/textsift/internal/models"
)

// mockAPI implements API with overridable behavior per call.
type mockAPI struct {
	uploadFunc  func(filename string) (api.UploadResponse, error)
	analyzeFunc func(chunkID string) (api.AnalyzeResponse, error)
	searchFunc  func(query, fileID string, limit int) ([]models.SearchResult, error)
	exportFunc  func(fileID string) ([]byte, error)
	emailFunc   func(fileID, toEmail string) (string, error)

	uploadCalls  int32
	analyzeCalls int32
	searchCalls  int32
}

func (m *mockAPI) Upload(ctx context.Context, filename string, content io.Reader) (api.UploadResponse, error) {
	atomic.AddInt32(&m.uploadCalls, 1)
	if m.uploadFunc == nil {
		return api.UploadResponse{}, errors.New("unexpected upload")
	}
	return m.uploadFunc(filename)
}

func (m *mockAPI) Analyze(ctx context.Context, chunkID string) (api.AnalyzeResponse, error) {
	atomic.AddInt32(&m.analyzeCalls, 1)
	if m.analyzeFunc == nil {
		return api.AnalyzeResponse{}, errors.New("unexpected analyze")
	}
	return m.analyzeFunc(chunkID)
}

func (m *mockAPI) Search(ctx context.Context, query, fileID string, limit int) ([]models.SearchResult, error) {
	atomic.AddInt32(&m.searchCalls, 1)
	if m.searchFunc == nil {
		return nil, errors.New("unexpected search")
	}
	return m.searchFunc(query, fileID, limit)
}

func (m *mockAPI) Export(ctx context.Context, fileID string) ([]byte, error) {
	if m.exportFunc == nil {
		return nil, errors.New("unexpected export")
	}
	return m.exportFunc(fileID)
}

func (m *mockAPI) EmailSummary(ctx context.Context, fileID, toEmail string) (string, error) {
	if m.emailFunc == nil {
		return "", errors.New("unexpected email summary")
	}
	return m.emailFunc(fileID, toEmail)
}

// recordingNotifier captures user notices.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []string
	alerts  []string
}

func (n *recordingNotifier) Notify(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, msg)
}

func (n *recordingNotifier) Alert(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, msg)
}

func (n *recordingNotifier) lastAlert() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.alerts) == 0 {
		return ""
	}
	return n.alerts[len(n.alerts)-1]
}

// recordingSaver captures saved export blobs.
type recordingSaver struct {
	filename string
	data     []byte
	err      error
}

func (s *recordingSaver) Save(filename string, data []byte) error {
	s.filename = filename
	s.data = data
	return s.err
}

func newOrchestrator(t *testing.T, m *mockAPI) (*Orchestrator, *recordingNotifier, *recordingSaver) {
	t.Helper()
	n := &recordingNotifier{}
	s := &recordingSaver{}
	return New(m, n, s, zaptest.NewLogger(t)), n, s
}

// selectTempFile writes content to a temp file and selects it.
func selectTempFile(t *testing.T, o *Orchestrator, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, o.SelectFile(path))
	return path
}

func TestStartAnalysis_HappyPath(t *testing.T) {
	m := &mockAPI{
		uploadFunc: func(filename string) (api.UploadResponse, error) {
			assert.Equal(t, "doc.txt", filename)
			return api.UploadResponse{FileID: "f1", ChunkIDs: []string{"c1", "c2", "c3"}, TotalChunks: 3}, nil
		},
		analyzeFunc: func(chunkID string) (api.AnalyzeResponse, error) {
			assert.Equal(t, "c1", chunkID, "only the first chunk is analyzed")
			return api.AnalyzeResponse{ChunkID: chunkID, Score: 0.8, Patterns: []string{"good"}}, nil
		},
	}
	o, _, _ := newOrchestrator(t, m)
	selectTempFile(t, o, "some text")

	require.NoError(t, o.StartAnalysis(context.Background()))

	assert.Equal(t, models.StateComplete, o.State())
	res := o.Result()
	require.NotNil(t, res)
	assert.Equal(t, 3, res.DocumentsProcessed)
	assert.Equal(t, 0.8, res.SentimentScore)
	assert.Equal(t, []string{"good"}, res.PatternsFound)

	doc := o.Document()
	assert.Equal(t, "f1", doc.FileID)
	assert.Equal(t, []string{"c1", "c2", "c3"}, doc.ChunkIDs)
	assert.EqualValues(t, 1, m.analyzeCalls)
}

func TestStartAnalysis_ZeroChunks(t *testing.T) {
	m := &mockAPI{
		uploadFunc: func(string) (api.UploadResponse, error) {
			return api.UploadResponse{FileID: "f1"}, nil
		},
	}
	o, n, _ := newOrchestrator(t, m)
	selectTempFile(t, o, "some text")

	err := o.StartAnalysis(context.Background())

	require.Error(t, err)
	assert.Equal(t, models.StateFailed, o.State())
	assert.Nil(t, o.Result(), "no AnalysisResult may be created")
	assert.EqualValues(t, 0, m.analyzeCalls)
	assert.Equal(t, "Upload failed or no chunks created.", n.lastAlert())
	assert.NotEmpty(t, o.LastError())
}

func TestStartAnalysis_NoFileSelected(t *testing.T) {
	o, n, _ := newOrchestrator(t, &mockAPI{})

	err := o.StartAnalysis(context.Background())

	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, models.StateIdle, o.State())
	assert.Equal(t, "Please select a file first.", n.lastAlert())
}

func TestStartAnalysis_AnalyzeFailure(t *testing.T) {
	m := &mockAPI{
		uploadFunc: func(string) (api.UploadResponse, error) {
			return api.UploadResponse{FileID: "f1", ChunkIDs: []string{"c1"}, TotalChunks: 1}, nil
		},
		analyzeFunc: func(string) (api.AnalyzeResponse, error) {
			return api.AnalyzeResponse{}, fmt.Errorf("%w: status 500", errs.ErrServerRejected)
		},
	}
	o, _, _ := newOrchestrator(t, m)
	selectTempFile(t, o, "some text")

	require.Error(t, o.StartAnalysis(context.Background()))
	assert.Equal(t, models.StateFailed, o.State())
	assert.Nil(t, o.Result())
}

func TestStartAnalysis_RetryAfterFailure(t *testing.T) {
	fail := true
	m := &mockAPI{
		uploadFunc: func(string) (api.UploadResponse, error) {
			if fail {
				return api.UploadResponse{}, fmt.Errorf("%w: connection refused", errs.ErrNetwork)
			}
			return api.UploadResponse{FileID: "f1", ChunkIDs: []string{"c1"}, TotalChunks: 1}, nil
		},
		analyzeFunc: func(string) (api.AnalyzeResponse, error) {
			return api.AnalyzeResponse{Score: 1}, nil
		},
	}
	o, _, _ := newOrchestrator(t, m)
	selectTempFile(t, o, "some text")

	require.Error(t, o.StartAnalysis(context.Background()))
	require.Equal(t, models.StateFailed, o.State())

	// Retry without re-selecting clears the previous error.
	fail = false
	require.NoError(t, o.StartAnalysis(context.Background()))
	assert.Equal(t, models.StateComplete, o.State())
	assert.Empty(t, o.LastError())
}

func TestStartAnalysis_RejectsReentrantCalls(t *testing.T) {
	release := make(chan struct{})
	m := &mockAPI{
		uploadFunc: func(string) (api.UploadResponse, error) {
			<-release
			return api.UploadResponse{FileID: "f1", ChunkIDs: []string{"c1"}, TotalChunks: 1}, nil
		},
		analyzeFunc: func(string) (api.AnalyzeResponse, error) {
			return api.AnalyzeResponse{Score: 1}, nil
		},
	}
	o, _, _ := newOrchestrator(t, m)
	selectTempFile(t, o, "some text")

	done := make(chan error, 1)
	go func() { done <- o.StartAnalysis(context.Background()) }()

	require.Eventually(t, func() bool {
		return o.State() == models.StateUploading
	}, time.Second, time.Millisecond)

	// Second call while a cycle is in flight: dropped, no second upload.
	require.NoError(t, o.StartAnalysis(context.Background()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&m.uploadCalls))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, models.StateComplete, o.State())
	assert.EqualValues(t, 1, atomic.LoadInt32(&m.uploadCalls))
}

func TestSelectFile_DiscardsStaleResponses(t *testing.T) {
	release := make(chan struct{})
	m := &mockAPI{
		uploadFunc: func(string) (api.UploadResponse, error) {
			<-release
			return api.UploadResponse{FileID: "old", ChunkIDs: []string{"c1"}, TotalChunks: 1}, nil
		},
		analyzeFunc: func(string) (api.AnalyzeResponse, error) {
			return api.AnalyzeResponse{Score: 9}, nil
		},
	}
	o, _, _ := newOrchestrator(t, m)
	selectTempFile(t, o, "first file")

	done := make(chan error, 1)
	go func() { done <- o.StartAnalysis(context.Background()) }()

	require.Eventually(t, func() bool {
		return o.State() == models.StateUploading
	}, time.Second, time.Millisecond)

	// User picks a new file while the old upload is outstanding.
	selectTempFile(t, o, "second file")
	close(release)
	require.NoError(t, <-done)

	// The stale upload response must not touch the new document.
	assert.Equal(t, models.StateFileSelected, o.State())
	assert.Empty(t, o.Document().FileID)
	assert.Nil(t, o.Result())
	assert.EqualValues(t, 0, m.analyzeCalls, "stale cycle must not continue into analyze")
}

func TestSelectFile_ResetsDerivedState(t *testing.T) {
	m := &mockAPI{
		uploadFunc: func(string) (api.UploadResponse, error) {
			return api.UploadResponse{FileID: "f1", ChunkIDs: []string{"c1"}, TotalChunks: 1}, nil
		},
		analyzeFunc: func(string) (api.AnalyzeResponse, error) {
			return api.AnalyzeResponse{Score: 0.5, Patterns: []string{"good"}}, nil
		},
		searchFunc: func(string, string, int) ([]models.SearchResult, error) {
			return []models.SearchResult{{ChunkID: "c1", Score: 1, Snippet: "hit"}}, nil
		},
	}
	o, _, _ := newOrchestrator(t, m)
	selectTempFile(t, o, "some text")
	require.NoError(t, o.StartAnalysis(context.Background()))
	require.NoError(t, o.Search(context.Background(), "hit"))
	require.NotNil(t, o.Result())
	require.NotEmpty(t, o.SearchResults())

	selectTempFile(t, o, "another file")

	assert.Equal(t, models.StateFileSelected, o.State())
	assert.Nil(t, o.Result(), "analysis result must not outlive its file")
	assert.Empty(t, o.SearchResults(), "search results must not outlive their file")
	assert.Empty(t, o.Document().FileID)
}

func TestSearch_NoFileID(t *testing.T) {
	m := &mockAPI{}
	o, _, _ := newOrchestrator(t, m)
	selectTempFile(t, o, "some text")

	require.NoError(t, o.Search(context.Background(), "foo"))
	assert.EqualValues(t, 0, m.searchCalls, "no request may be issued without a file id")
	assert.Empty(t, o.SearchResults())
}

func TestSearch_EmptyQuery(t *testing.T) {
	m := &mockAPI{}
	o, _, _ := newOrchestrator(t, m)

	require.NoError(t, o.Search(context.Background(), ""))
	assert.EqualValues(t, 0, m.searchCalls)
}

func TestSearch_ReplacesResultsWholesale(t *testing.T) {
	hits := []models.SearchResult{
		{ChunkID: "c1", Score: 2, Snippet: "a"},
		{ChunkID: "c2", Score: 1, Snippet: "b"},
	}
	m := &mockAPI{
		uploadFunc: func(string) (api.UploadResponse, error) {
			return api.UploadResponse{FileID: "f1", ChunkIDs: []string{"c1"}, TotalChunks: 1}, nil
		},
		analyzeFunc: func(string) (api.AnalyzeResponse, error) {
			return api.AnalyzeResponse{}, nil
		},
		searchFunc: func(query, fileID string, limit int) ([]models.SearchResult, error) {
			assert.Equal(t, "f1", fileID)
			assert.Equal(t, 20, limit)
			return hits, nil
		},
	}
	o, _, _ := newOrchestrator(t, m)
	selectTempFile(t, o, "some text")
	require.NoError(t, o.StartAnalysis(context.Background()))

	require.NoError(t, o.Search(context.Background(), "first"))
	assert.Len(t, o.SearchResults(), 2)

	hits = []models.SearchResult{{ChunkID: "c9", Score: 5, Snippet: "z"}}
	require.NoError(t, o.Search(context.Background(), "second"))

	got := o.SearchResults()
	require.Len(t, got, 1, "results are replaced, not appended")
	assert.Equal(t, "c9", got[0].ChunkID)
}

func TestSearch_FailureKeepsPriorResults(t *testing.T) {
	failing := false
	m := &mockAPI{
		uploadFunc: func(string) (api.UploadResponse, error) {
			return api.UploadResponse{FileID: "f1", ChunkIDs: []string{"c1"}, TotalChunks: 1}, nil
		},
		analyzeFunc: func(string) (api.AnalyzeResponse, error) {
			return api.AnalyzeResponse{}, nil
		},
		searchFunc: func(string, string, int) ([]models.SearchResult, error) {
			if failing {
				return nil, fmt.Errorf("%w: search index offline", errs.ErrServerRejected)
			}
			return []models.SearchResult{{ChunkID: "c1", Score: 1, Snippet: "hit"}}, nil
		},
	}
	o, n, _ := newOrchestrator(t, m)
	selectTempFile(t, o, "some text")
	require.NoError(t, o.StartAnalysis(context.Background()))
	require.NoError(t, o.Search(context.Background(), "foo"))
	require.Len(t, o.SearchResults(), 1)

	failing = true
	require.Error(t, o.Search(context.Background(), "bar"))

	assert.Len(t, o.SearchResults(), 1, "prior results survive a failed search")
	assert.Contains(t, n.lastAlert(), "search index offline")
}

func TestExportDocument(t *testing.T) {
	m := &mockAPI{
		uploadFunc: func(string) (api.UploadResponse, error) {
			return api.UploadResponse{FileID: "f1", ChunkIDs: []string{"c1"}, TotalChunks: 1}, nil
		},
		analyzeFunc: func(string) (api.AnalyzeResponse, error) {
			return api.AnalyzeResponse{}, nil
		},
		exportFunc: func(fileID string) ([]byte, error) {
			return []byte("chunk_id,text\n"), nil
		},
	}
	o, _, s := newOrchestrator(t, m)
	selectTempFile(t, o, "some text")
	require.NoError(t, o.StartAnalysis(context.Background()))

	require.NoError(t, o.ExportDocument(context.Background()))

	assert.Equal(t, "f1_chunks.csv", s.filename)
	assert.Equal(t, []byte("chunk_id,text\n"), s.data)
	assert.Equal(t, models.StateComplete, o.State(), "export performs no state transition")
}

func TestExportDocument_NoFileID(t *testing.T) {
	o, _, s := newOrchestrator(t, &mockAPI{})

	require.NoError(t, o.ExportDocument(context.Background()))
	assert.Empty(t, s.filename, "no export without a file id")
}

func TestExportDocument_Failure(t *testing.T) {
	m := &mockAPI{
		uploadFunc: func(string) (api.UploadResponse, error) {
			return api.UploadResponse{FileID: "f1", ChunkIDs: []string{"c1"}, TotalChunks: 1}, nil
		},
		analyzeFunc: func(string) (api.AnalyzeResponse, error) {
			return api.AnalyzeResponse{}, nil
		},
		exportFunc: func(string) ([]byte, error) {
			return nil, fmt.Errorf("%w: status 500", errs.ErrServerRejected)
		},
	}
	o, n, s := newOrchestrator(t, m)
	selectTempFile(t, o, "some text")
	require.NoError(t, o.StartAnalysis(context.Background()))

	require.Error(t, o.ExportDocument(context.Background()))
	assert.Empty(t, s.filename)
	assert.Equal(t, "Failed to export CSV.", n.lastAlert())
}

func TestSendSummary(t *testing.T) {
	m := &mockAPI{
		uploadFunc: func(string) (api.UploadResponse, error) {
			return api.UploadResponse{FileID: "f1", ChunkIDs: []string{"c1"}, TotalChunks: 1}, nil
		},
		analyzeFunc: func(string) (api.AnalyzeResponse, error) {
			return api.AnalyzeResponse{}, nil
		},
		emailFunc: func(fileID, toEmail string) (string, error) {
			assert.Equal(t, "f1", fileID)
			return "Summary email sent to alice@example.com", nil
		},
	}
	o, n, _ := newOrchestrator(t, m)
	selectTempFile(t, o, "some text")
	require.NoError(t, o.StartAnalysis(context.Background()))

	require.NoError(t, o.SendSummary(context.Background(), "alice@example.com"))

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Contains(t, n.notices, "Summary email sent to alice@example.com")
}

func TestSendSummary_Preconditions(t *testing.T) {
	called := false
	m := &mockAPI{
		emailFunc: func(string, string) (string, error) {
			called = true
			return "", nil
		},
	}
	o, _, _ := newOrchestrator(t, m)

	// No file id: silent no-op.
	require.NoError(t, o.SendSummary(context.Background(), "alice@example.com"))
	assert.False(t, called)

	// No recipient: silent no-op even with a file id.
	o2, n2, _ := newOrchestrator(t, &mockAPI{
		uploadFunc: func(string) (api.UploadResponse, error) {
			return api.UploadResponse{FileID: "f1", ChunkIDs: []string{"c1"}, TotalChunks: 1}, nil
		},
		analyzeFunc: func(string) (api.AnalyzeResponse, error) {
			return api.AnalyzeResponse{}, nil
		},
	})
	selectTempFile(t, o2, "some text")
	require.NoError(t, o2.StartAnalysis(context.Background()))
	require.NoError(t, o2.SendSummary(context.Background(), ""))

	// Malformed recipient: rejected before any request.
	err := o2.SendSummary(context.Background(), "not-an-email")
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, "Please enter a valid email address.", n2.lastAlert())
}

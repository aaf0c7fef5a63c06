package stubserver_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/avetrov/textsift/internal/client/api"
	"github.com/avetrov/textsift/internal/errs"
	"github.com/avetrov/textsift/internal/stubserver"
)

func newStub(t *testing.T) *api.Client {
	t.Helper()
	srv := httptest.NewServer(stubserver.NewRouter(stubserver.NewStore(), zaptest.NewLogger(t)))
	t.Cleanup(srv.Close)
	return api.New(api.NewHTTPClient(5*time.Second), srv.URL, zaptest.NewLogger(t))
}

func TestAuthFlow(t *testing.T) {
	c := newStub(t)
	ctx := context.Background()

	// Login before registration is rejected with the server message.
	_, err := c.Login(ctx, "alice@example.com", "pw")
	require.ErrorIs(t, err, errs.ErrServerRejected)
	assert.Contains(t, err.Error(), "Invalid credentials")

	require.NoError(t, c.Register(ctx, "alice@example.com", "pw", "Alice"))

	// Duplicate registration is rejected.
	err = c.Register(ctx, "alice@example.com", "pw2", "Alice")
	require.ErrorIs(t, err, errs.ErrServerRejected)

	identity, err := c.Login(ctx, "alice@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Alice", identity.Name)
	assert.Equal(t, "alice@example.com", identity.Email)
	assert.NotEmpty(t, identity.ID)

	_, err = c.Login(ctx, "alice@example.com", "wrong")
	require.ErrorIs(t, err, errs.ErrServerRejected)
}

func TestDocumentFlow(t *testing.T) {
	c := newStub(t)
	ctx := context.Background()

	// Long enough to produce multiple chunks at the fixed split size.
	text := strings.Repeat("the system is good and the database needs work ", 60)
	upload, err := c.Upload(ctx, "doc.txt", strings.NewReader(text))
	require.NoError(t, err)
	assert.NotEmpty(t, upload.FileID)
	assert.Greater(t, upload.TotalChunks, 1)
	require.Len(t, upload.ChunkIDs, upload.TotalChunks)
	assert.True(t, strings.HasPrefix(upload.ChunkIDs[0], upload.FileID+"_chunk_"))

	analysis, err := c.Analyze(ctx, upload.ChunkIDs[0])
	require.NoError(t, err)
	assert.Greater(t, analysis.Score, 0.0)
	assert.Contains(t, analysis.Patterns, "good")
	assert.Contains(t, analysis.Patterns, "system")

	hits, err := c.Search(ctx, "database", upload.FileID, 20)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.LessOrEqual(t, len(hits), 20)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score, "hits are server-ranked")
	}

	blob, err := c.Export(ctx, upload.FileID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(blob), "chunk_id,text,score,patterns"))

	msg, err := c.EmailSummary(ctx, upload.FileID, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Summary email sent to alice@example.com", msg)
}

func TestUpload_EmptyFile(t *testing.T) {
	c := newStub(t)

	_, err := c.Upload(context.Background(), "empty.txt", strings.NewReader("   "))
	require.ErrorIs(t, err, errs.ErrServerRejected)
	assert.Contains(t, err.Error(), "Could not extract text")
}

func TestAnalyze_UnknownChunk(t *testing.T) {
	c := newStub(t)

	_, err := c.Analyze(context.Background(), "nope_chunk_1")
	require.ErrorIs(t, err, errs.ErrServerRejected)
	assert.Contains(t, err.Error(), "Chunk not found")
}

func TestExport_UnknownFile(t *testing.T) {
	c := newStub(t)

	_, err := c.Export(context.Background(), "missing")
	require.ErrorIs(t, err, errs.ErrServerRejected)
}

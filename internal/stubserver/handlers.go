package stubserver

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Handlers serves the analysis-service wire contract over a Store.
type Handlers struct {
	Store *Store
}

// Register handles account creation from form-encoded credentials.
// Failures come back as an error payload field with a 400 status.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")
	name := r.PostFormValue("name")
	if email == "" || password == "" || name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email, password and name are required"})
		return
	}

	if err := h.Store.RegisterUser(email, password, name); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User registered successfully"})
}

// Login checks form-encoded credentials and returns the user record.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	user, err := h.Store.LoginUser(email, password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Login successful",
		"user":    user,
	})
}

// Upload accepts a multipart file, chunks it and reports the chunk ids.
// An empty file yields an error payload, like the real service's failed
// text extraction.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file field is required"})
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read file"})
		return
	}
	text := string(raw)
	if strings.TrimSpace(text) == "" {
		writeJSON(w, http.StatusOK, map[string]string{"error": "Could not extract text from file"})
		return
	}

	fileID, chunkIDs := h.Store.SaveChunks(text)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "File uploaded and chunked successfully",
		"file_id":      fileID,
		"total_chunks": len(chunkIDs),
		"chunk_ids":    chunkIDs,
	})
}

// AnalyzeChunk scores a single chunk by id.
func (h *Handlers) AnalyzeChunk(w http.ResponseWriter, r *http.Request) {
	chunkID := chi.URLParam(r, "chunkID")

	chunk, ok := h.Store.GetChunk(chunkID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"error": "Chunk not found"})
		return
	}

	a := Analyze(chunk.Text)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chunk_id": chunkID,
		"matches":  MarshalMatches(a.Matches),
		"patterns": a.Patterns,
		"score":    a.Score,
	})
}

// Search ranks chunks of a file against a keyword query.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	fileID := r.URL.Query().Get("file_id")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusOK, map[string]string{"error": "Query parameter 'q' is required"})
		return
	}

	limit := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		limit = v
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}

	hits := h.Store.Search(q, fileID, limit)
	if hits == nil {
		hits = []SearchHit{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   q,
		"file_id": fileID,
		"results": hits,
		"count":   len(hits),
	})
}

// Export streams all chunks of a file as CSV.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file_id parameter is required"})
		return
	}

	chunks := h.Store.ChunksForFile(fileID)
	if len(chunks) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No chunks found for this file_id"})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_chunks.csv", fileID))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"chunk_id", "text", "score", "patterns"})
	for _, c := range chunks {
		a := Analyze(c.Text)
		_ = cw.Write([]string{
			c.ChunkID,
			c.Text,
			strconv.Itoa(a.Score),
			strings.Join(a.Patterns, "|"),
		})
	}
	cw.Flush()
}

// EmailSummary pretends to mail the summary and confirms. The stub
// never talks SMTP; the confirmation message matches the real service.
func (h *Handlers) EmailSummary(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("file_id")
	toEmail := r.URL.Query().Get("to_email")
	if fileID == "" || toEmail == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file_id and to_email are required"})
		return
	}

	if len(h.Store.ChunksForFile(fileID)) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No chunks found for this file_id"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Summary email sent to %s", toEmail)})
}

// Health answers the service liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Backend running"})
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package stubserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/avetrov/textsift/internal/middleware"
)

// NewRouter constructs an HTTP handler serving the analysis-service
// contract.
//
// Routes:
//
//	POST /register          → Handlers.Register
//	POST /login             → Handlers.Login
//	POST /upload            → Handlers.Upload
//	GET  /analyze/{chunkID} → Handlers.AnalyzeChunk
//	GET  /search            → Handlers.Search
//	GET  /export            → Handlers.Export
//	GET  /email_summary     → Handlers.EmailSummary
//	GET  /                  → Handlers.Health
func NewRouter(store *Store, logger *zap.Logger) http.Handler {
	h := &Handlers{Store: store}

	r := chi.NewRouter()

	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/upload", h.Upload)
	r.Get("/analyze/{chunkID}", h.AnalyzeChunk)
	r.Get("/search", h.Search)
	r.Get("/export", h.Export)
	r.Get("/email_summary", h.EmailSummary)
	r.Get("/", h.Health)

	return r
}

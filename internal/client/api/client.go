// Package api implements the HTTP client for the text analysis service.
//
// All methods classify failures through the sentinels in internal/errs:
// transport problems wrap ErrNetwork, non-success statuses and explicit
// error payload fields wrap ErrServerRejected. No call is retried here;
// retry is always a fresh user action.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/avetrov/textsift/internal/errs"
	"github.com/avetrov/textsift/internal/models"
)

const (
	apiLogin        = "/login"
	apiRegister     = "/register"
	apiUpload       = "/upload"
	apiAnalyze      = "/analyze/"
	apiSearch       = "/search"
	apiExport       = "/export"
	apiEmailSummary = "/email_summary"
)

// Client is a typed HTTP client for the analysis service.
type Client struct {
	http    *http.Client
	baseURL string
	log     *zap.Logger
}

// New constructs a Client talking to baseURL through httpClient.
// httpClient carries the request timeout; see NewHTTPClient.
func New(httpClient *http.Client, baseURL string, logger *zap.Logger) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger,
	}
}

// NewHTTPClient builds the default transport with a client-enforced
// timeout. The service historically had none, which left a hung upload
// parked forever; a timed-out call now surfaces as a network failure.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// UploadResponse is the decoded body of a successful upload.
type UploadResponse struct {
	FileID      string   `json:"file_id"`
	ChunkIDs    []string `json:"chunk_ids"`
	TotalChunks int      `json:"total_chunks"`
}

// AnalyzeResponse is the decoded body of a successful analyze call.
// Patterns is flattened from the categorized matches in body order.
type AnalyzeResponse struct {
	ChunkID  string
	Score    float64
	Patterns []string
}

// Login authenticates with the service and returns the identity record.
// Credentials are sent form-encoded; the service answers {user: {...}}
// on success and an error field otherwise.
func (c *Client) Login(ctx context.Context, email, password string) (models.Identity, error) {
	form := url.Values{"email": {email}, "password": {password}}

	var out struct {
		User  *models.Identity `json:"user"`
		Error string           `json:"error"`
	}
	if err := c.postForm(ctx, apiLogin, form, &out); err != nil {
		return models.Identity{}, fmt.Errorf("login: %w", err)
	}
	if out.Error != "" {
		return models.Identity{}, fmt.Errorf("login: %w: %s", errs.ErrServerRejected, out.Error)
	}
	if out.User == nil {
		return models.Identity{}, fmt.Errorf("login: %w: no user data returned", errs.ErrServerRejected)
	}
	return *out.User, nil
}

// Register creates a new account. The caller logs in separately
// afterwards; registration does not establish a session.
func (c *Client) Register(ctx context.Context, email, password, name string) error {
	form := url.Values{"email": {email}, "password": {password}, "name": {name}}

	var out struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := c.postForm(ctx, apiRegister, form, &out); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if out.Error != "" {
		return fmt.Errorf("register: %w: %s", errs.ErrServerRejected, out.Error)
	}
	return nil
}

// Upload sends the file as multipart form data and returns the chunking
// result. The service reports extraction failures as an error field in
// an otherwise successful response.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("upload: %w: %v", errs.ErrNetwork, err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return UploadResponse{}, fmt.Errorf("upload: %w: %v", errs.ErrNetwork, err)
	}
	if err := mw.Close(); err != nil {
		return UploadResponse{}, fmt.Errorf("upload: %w: %v", errs.ErrNetwork, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiUpload, &buf)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("upload: %w: %v", errs.ErrNetwork, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		UploadResponse
		Error string `json:"error"`
	}
	if err := c.do(req, &out); err != nil {
		return UploadResponse{}, fmt.Errorf("upload: %w", err)
	}
	if out.Error != "" {
		return UploadResponse{}, fmt.Errorf("upload: %w: %s", errs.ErrServerRejected, out.Error)
	}
	return out.UploadResponse, nil
}

// Analyze scores a single chunk. The categorized matches are flattened
// into one pattern list preserving the order of the response body.
func (c *Client) Analyze(ctx context.Context, chunkID string) (AnalyzeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiAnalyze+url.PathEscape(chunkID), nil)
	if err != nil {
		return AnalyzeResponse{}, fmt.Errorf("analyze: %w: %v", errs.ErrNetwork, err)
	}

	var out struct {
		ChunkID string          `json:"chunk_id"`
		Score   float64         `json:"score"`
		Matches json.RawMessage `json:"matches"`
		Error   string          `json:"error"`
	}
	if err := c.do(req, &out); err != nil {
		return AnalyzeResponse{}, fmt.Errorf("analyze: %w", err)
	}
	if out.Error != "" {
		return AnalyzeResponse{}, fmt.Errorf("analyze: %w: %s", errs.ErrServerRejected, out.Error)
	}

	patterns, err := flattenMatches(out.Matches)
	if err != nil {
		return AnalyzeResponse{}, fmt.Errorf("analyze: %w: invalid matches payload: %v", errs.ErrNetwork, err)
	}
	return AnalyzeResponse{ChunkID: out.ChunkID, Score: out.Score, Patterns: patterns}, nil
}

// Search runs a keyword query scoped to fileID, capped at limit results.
func (c *Client) Search(ctx context.Context, query, fileID string, limit int) ([]models.SearchResult, error) {
	q := url.Values{
		"q":       {query},
		"file_id": {fileID},
		"limit":   {strconv.Itoa(limit)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiSearch+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search: %w: %v", errs.ErrNetwork, err)
	}

	var out struct {
		Results []models.SearchResult `json:"results"`
		Error   string                `json:"error"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("search: %w: %s", errs.ErrServerRejected, out.Error)
	}
	return out.Results, nil
}

// Export fetches the CSV export for fileID. The body is opaque
// pass-through; the caller decides where to save it.
func (c *Client) Export(ctx context.Context, fileID string) ([]byte, error) {
	q := url.Values{"file_id": {fileID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiExport+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("export: %w: %v", errs.ErrNetwork, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("export: %w: %v", errs.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("export: %w: status %d", errs.ErrServerRejected, resp.StatusCode)
	}
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("export: %w: %v", errs.ErrNetwork, err)
	}
	return blob, nil
}

// EmailSummary asks the service to mail the summary for fileID and
// returns the server's confirmation message.
func (c *Client) EmailSummary(ctx context.Context, fileID, toEmail string) (string, error) {
	q := url.Values{"file_id": {fileID}, "to_email": {toEmail}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiEmailSummary+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("email summary: %w: %v", errs.ErrNetwork, err)
	}

	var out struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("email summary: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("email summary: %w: %s", errs.ErrServerRejected, out.Error)
	}
	return out.Message, nil
}

// postForm sends a form-encoded POST and decodes the JSON response into v.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, v)
}

// do executes the request and decodes the JSON body into v. Non-success
// statuses still get their body decoded first: the service reports most
// failures as an error field, and that message beats a bare status code.
func (c *Client) do(req *http.Request, v interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrNetwork, err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("%w: status %d", errs.ErrServerRejected, resp.StatusCode)
		}
		return fmt.Errorf("%w: invalid response: %v", errs.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if msg := errorField(body); msg != "" {
			return fmt.Errorf("%w: %s", errs.ErrServerRejected, msg)
		}
		return fmt.Errorf("%w: status %d", errs.ErrServerRejected, resp.StatusCode)
	}

	c.log.Debug("request complete",
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode))
	return nil
}

// errorField extracts the error field from a JSON body, if any.
func errorField(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	return e.Error
}

// flattenMatches turns {"category": ["p1", ...], ...} into a single list,
// walking the object with a token decoder so patterns keep the order the
// server wrote them in. A map decode would shuffle categories.
func flattenMatches(raw json.RawMessage) ([]string, error) {
	patterns := []string{}
	if len(raw) == 0 {
		return patterns, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("matches is not an object")
	}

	for dec.More() {
		// category name
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var list []string
		if err := dec.Decode(&list); err != nil {
			return nil, err
		}
		patterns = append(patterns, list...)
	}
	return patterns, nil
}

// Package stubserver is an in-memory stand-in for the remote text
// analysis service. It implements the wire contract the client speaks
// (auth, upload, analyze, search, export, email summary) with trivial
// fixed-size chunking and rule-based scoring, so the client can be run
// and tested end to end without the real service.
package stubserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// chunkSize is the fixed split size in bytes.
const chunkSize = 800

// rule pairs a pattern with its scoring weight.
type rule struct {
	name    string
	pattern *regexp.Regexp
	weight  int
}

// rules are applied in order; the analyze response reports categories
// in this order, which the client preserves when flattening.
var rules = []rule{
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), 8},
	{"date", regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`), 4},
	{"urgent", regexp.MustCompile(`\b(urgent|immediate|asap|important)\b`), 4},
	{"request", regexp.MustCompile(`\b(request|apply|submit|require|need)\b`), 3},
	{"technology", regexp.MustCompile(`\b(software|application|system|server|database|network)\b`), 3},
	{"positive", regexp.MustCompile(`\b(good|satisfied|happy|excellent)\b`), 1},
	{"negative", regexp.MustCompile(`\b(bad|unsatisfied|poor|delay|angry)\b`), 1},
}

// User is a registered account.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	password string
}

// Chunk is one stored sub-unit of an uploaded file.
type Chunk struct {
	FileID  string
	ChunkID string
	Text    string
}

// Analysis is the scoring outcome for one chunk.
type Analysis struct {
	Score    int
	Matches  []Category
	Patterns []string
}

// Category is one named pattern group with its hits.
type Category struct {
	Name     string
	Patterns []string
}

// MarshalMatches renders categories as a JSON object preserving rule
// order. encoding/json would sort a map's keys.
func MarshalMatches(categories []Category) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range categories {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(c.Name)
		buf.Write(key)
		buf.WriteByte(':')
		val, _ := json.Marshal(c.Patterns)
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// Store holds all service state in memory.
type Store struct {
	users  *cache.Cache // email -> User
	chunks *cache.Cache // chunk id -> Chunk
	files  *cache.Cache // file id -> []string of chunk ids
}

// NewStore constructs an empty Store. Nothing expires; the stub lives
// as long as the test or dev session that started it.
func NewStore() *Store {
	return &Store{
		users:  cache.New(cache.NoExpiration, 0),
		chunks: cache.New(cache.NoExpiration, 0),
		files:  cache.New(cache.NoExpiration, 0),
	}
}

// RegisterUser creates an account. Duplicate emails are rejected.
func (s *Store) RegisterUser(email, password, name string) error {
	if _, exists := s.users.Get(email); exists {
		return fmt.Errorf("User already exists")
	}
	s.users.Set(email, User{
		ID:       uuid.NewString(),
		Name:     name,
		Email:    email,
		password: password,
	}, cache.NoExpiration)
	return nil
}

// LoginUser checks credentials and returns the account.
func (s *Store) LoginUser(email, password string) (User, error) {
	v, exists := s.users.Get(email)
	if !exists {
		return User{}, fmt.Errorf("Invalid credentials")
	}
	u := v.(User)
	if u.password != password {
		return User{}, fmt.Errorf("Invalid credentials")
	}
	return u, nil
}

// SaveChunks splits text into fixed-size chunks and stores them under a
// fresh file id. Chunk ids follow the {file_id}_chunk_{n} convention,
// numbered from 1.
func (s *Store) SaveChunks(text string) (fileID string, chunkIDs []string) {
	fileID = uuid.NewString()

	for i := 0; i < len(text); i += chunkSize {
		end := i + chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunkID := fmt.Sprintf("%s_chunk_%d", fileID, len(chunkIDs)+1)
		s.chunks.Set(chunkID, Chunk{FileID: fileID, ChunkID: chunkID, Text: text[i:end]}, cache.NoExpiration)
		chunkIDs = append(chunkIDs, chunkID)
	}

	s.files.Set(fileID, chunkIDs, cache.NoExpiration)
	return fileID, chunkIDs
}

// GetChunk returns the stored chunk, if any.
func (s *Store) GetChunk(chunkID string) (Chunk, bool) {
	v, ok := s.chunks.Get(chunkID)
	if !ok {
		return Chunk{}, false
	}
	return v.(Chunk), true
}

// ChunksForFile returns all chunks of a file in upload order.
func (s *Store) ChunksForFile(fileID string) []Chunk {
	v, ok := s.files.Get(fileID)
	if !ok {
		return nil
	}
	ids := v.([]string)
	out := make([]Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.GetChunk(id); ok {
			out = append(out, c)
		}
	}
	return out
}

// Analyze scores a chunk's text against the rule set. Every category
// appears in the result, hit or not, matching the real service.
func Analyze(text string) Analysis {
	lowered := strings.ToLower(text)

	var a Analysis
	for _, r := range rules {
		found := r.pattern.FindAllString(lowered, -1)
		unique := dedupe(found)
		a.Matches = append(a.Matches, Category{Name: r.name, Patterns: unique})
		a.Patterns = append(a.Patterns, unique...)
		a.Score += len(unique) * r.weight
	}

	// Substantial text with no hits still earns a baseline score.
	if a.Score == 0 && len(strings.TrimSpace(text)) > 30 {
		a.Score = 5
	}
	return a
}

// SearchHit is one ranked match for a keyword query.
type SearchHit struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// Search ranks a file's chunks by occurrence count of the query.
func (s *Store) Search(query, fileID string, limit int) []SearchHit {
	q := strings.ToLower(query)

	var hits []SearchHit
	for _, c := range s.ChunksForFile(fileID) {
		n := strings.Count(strings.ToLower(c.Text), q)
		if n == 0 {
			continue
		}
		snippet := c.Text
		if len(snippet) > 800 {
			snippet = snippet[:800] + "..."
		}
		hits = append(hits, SearchHit{ChunkID: c.ChunkID, Score: float64(n), Snippet: snippet})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// dedupe keeps the first occurrence of each value, preserving order.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := []string{}
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

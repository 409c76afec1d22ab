package server

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"afreeca-dl/internal/monitor"
	"afreeca-dl/internal/registry"
	"afreeca-dl/pkg/models"
)

type stubExtractor struct {
	name    string
	pattern string
	record  *models.MediaRecord
	err     error
}

func (s *stubExtractor) Extract(ctx context.Context, url string) (*models.MediaRecord, error) {
	return s.record, s.err
}

func (s *stubExtractor) ValidateURL(url string) bool { return true }

func (s *stubExtractor) GetName() string { return s.name }

func (s *stubExtractor) GetSupportedURLPatterns() []string { return []string{s.pattern} }

type stubPager struct {
	pages [][]*models.MediaRecord
}

func (p *stubPager) Page(ctx context.Context, n int) ([]*models.MediaRecord, error) {
	if n >= len(p.pages) {
		return nil, nil
	}
	return p.pages[n], nil
}

func (p *stubPager) All(ctx context.Context) iter.Seq2[*models.MediaRecord, error] {
	return p.From(ctx, 0)
}

func (p *stubPager) From(ctx context.Context, n int) iter.Seq2[*models.MediaRecord, error] {
	return func(yield func(*models.MediaRecord, error) bool) {}
}

func (p *stubPager) Slice(ctx context.Context, start, end int) ([]*models.MediaRecord, error) {
	var all []*models.MediaRecord
	for _, page := range p.pages {
		all = append(all, page...)
	}
	if end < 0 || end > len(all) {
		end = len(all)
	}
	if start >= end {
		return nil, nil
	}
	return all[start:end], nil
}

func newTestServer(t *testing.T, cfg *models.Config, extractors ...models.Extractor) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.NewRegistry(zerolog.Nop())
	for _, e := range extractors {
		if err := reg.RegisterExtractor(e); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	mon := monitor.NewMonitor(monitor.NewMetrics(prometheus.NewRegistry()), zerolog.Nop())
	srv, err := NewServer(cfg, reg, mon, zerolog.Nop())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return srv
}

func doJSON(srv *Server, method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Expected JSON body, got %q", rec.Body.String())
	}
	return body
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, &models.Config{})

	rec := doJSON(srv, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := decode(t, rec); body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("Expected request ID header")
	}
}

func TestRequestIDIsReused(t *testing.T) {
	srv := newTestServer(t, &models.Config{})

	rec := doJSON(srv, http.MethodGet, "/health", nil, http.Header{requestIDHeader: {"abc"}})
	if got := rec.Header().Get(requestIDHeader); got != "abc" {
		t.Errorf("Expected request ID abc, got %q", got)
	}
}

func TestExtract(t *testing.T) {
	srv := newTestServer(t, &models.Config{}, &stubExtractor{
		name:    "afreecatv",
		pattern: `^https?://vod\.example\.com/`,
		record: &models.MediaRecord{
			ID:       "36164052",
			Platform: models.PlatformAfreecaTV,
			Kind:     models.KindSingle,
			Title:    "Test Video",
		},
	})

	rec := doJSON(srv, http.MethodPost, "/api/v1/extract", gin.H{"url": "https://vod.example.com/player/36164052"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decode(t, rec)
	if body["extractor"] != "afreecatv" {
		t.Errorf("Expected extractor afreecatv, got %v", body["extractor"])
	}
	record, _ := body["record"].(map[string]interface{})
	if record["title"] != "Test Video" {
		t.Errorf("Expected title Test Video, got %v", record["title"])
	}
}

func TestExtractBadRequest(t *testing.T) {
	srv := newTestServer(t, &models.Config{})

	if rec := doJSON(srv, http.MethodPost, "/api/v1/extract", gin.H{}, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing url, got %d", rec.Code)
	}
	if rec := doJSON(srv, http.MethodPost, "/api/v1/extract", gin.H{"url": "https://unknown.example.com/"}, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unsupported url, got %d", rec.Code)
	}
}

func TestExtractErrorStatus(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{models.NewExpectedError(models.ErrNotFound, "afreecatv", "gone"), http.StatusNotFound},
		{models.NewExpectedError(models.ErrRestricted, "afreecatv", "adult"), http.StatusForbidden},
		{models.NewExpectedError(models.ErrPasswordRequired, "afreecatv:live", "password"), http.StatusForbidden},
		{models.NewExpectedError(models.ErrAuthenticationFailed, "afreecatv", "login"), http.StatusUnauthorized},
		{models.NewExpectedError(models.ErrNotLive, "afreecatv:live", "offline"), http.StatusConflict},
		{&models.ExtractorError{Kind: models.ErrUnresolvable, Message: "broken"}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
	}

	for _, test := range tests {
		srv := newTestServer(t, &models.Config{}, &stubExtractor{
			name:    "afreecatv",
			pattern: `^https?://vod\.example\.com/`,
			err:     test.err,
		})

		rec := doJSON(srv, http.MethodPost, "/api/v1/extract", gin.H{"url": "https://vod.example.com/1"}, nil)
		if rec.Code != test.expected {
			t.Errorf("Error %v: expected %d, got %d", test.err, test.expected, rec.Code)
		}
	}
}

func TestCatalogPage(t *testing.T) {
	entry := &models.MediaRecord{Kind: models.KindURL, URL: "https://vod.example.com/player/1/", ExtractorKey: "afreecatv"}
	srv := newTestServer(t, &models.Config{}, &stubExtractor{
		name:    "afreecatv:user",
		pattern: `^https?://bj\.example\.com/`,
		record: &models.MediaRecord{
			ID:    "rlantnghks_review",
			Kind:  models.KindPlaylist,
			Title: "rlantnghks_review",
			Pages: &stubPager{pages: [][]*models.MediaRecord{{entry}}},
		},
	})

	rec := doJSON(srv, http.MethodGet, "/api/v1/catalog?url=https://bj.example.com/rlantnghks&page=0", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if entries, _ := body["entries"].([]interface{}); len(entries) != 1 {
		t.Errorf("Expected 1 entry, got %v", body["entries"])
	}
	if body["has_more"] != true {
		t.Errorf("Expected has_more true, got %v", body["has_more"])
	}

	rec = doJSON(srv, http.MethodGet, "/api/v1/catalog?url=https://bj.example.com/rlantnghks&page=1", nil, nil)
	body = decode(t, rec)
	if entries, _ := body["entries"].([]interface{}); len(entries) != 0 {
		t.Errorf("Expected no entries past the end, got %v", body["entries"])
	}
	if body["has_more"] != false {
		t.Errorf("Expected has_more false, got %v", body["has_more"])
	}

	if rec := doJSON(srv, http.MethodGet, "/api/v1/catalog?url=https://bj.example.com/x&page=-1", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative page, got %d", rec.Code)
	}
}

func TestCatalogSlice(t *testing.T) {
	var page []*models.MediaRecord
	for _, id := range []string{"1", "2", "3"} {
		page = append(page, &models.MediaRecord{Kind: models.KindURL, URL: "https://vod.example.com/player/" + id + "/"})
	}
	srv := newTestServer(t, &models.Config{}, &stubExtractor{
		name:    "afreecatv:user",
		pattern: `^https?://bj\.example\.com/`,
		record: &models.MediaRecord{
			ID:    "rlantnghks_review",
			Kind:  models.KindPlaylist,
			Pages: &stubPager{pages: [][]*models.MediaRecord{page}},
		},
	})

	tests := []struct {
		query   string
		entries int
		hasMore bool
	}{
		{"offset=0&limit=2", 2, true},
		{"offset=1&limit=5", 2, false},
		{"offset=3&limit=1", 0, false},
	}

	for _, test := range tests {
		rec := doJSON(srv, http.MethodGet, "/api/v1/catalog?url=https://bj.example.com/rlantnghks&"+test.query, nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", test.query, rec.Code, rec.Body.String())
		}
		body := decode(t, rec)
		if entries, _ := body["entries"].([]interface{}); len(entries) != test.entries {
			t.Errorf("%s: expected %d entries, got %v", test.query, test.entries, body["entries"])
		}
		if body["has_more"] != test.hasMore {
			t.Errorf("%s: expected has_more %v, got %v", test.query, test.hasMore, body["has_more"])
		}
	}

	if rec := doJSON(srv, http.MethodGet, "/api/v1/catalog?url=https://bj.example.com/x&limit=0", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero limit, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	cfg := &models.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.JWTSecret = "secret"
	cfg.Auth.AdminUser = "admin"
	cfg.Auth.AdminPassword = "hunter2"
	cfg.Auth.TokenExpiry = 1

	srv := newTestServer(t, cfg, &stubExtractor{
		name:    "afreecatv",
		pattern: `^https?://vod\.example\.com/`,
		record:  &models.MediaRecord{ID: "1", Kind: models.KindSingle},
	})
	payload := gin.H{"url": "https://vod.example.com/1"}

	if rec := doJSON(srv, http.MethodPost, "/api/v1/extract", payload, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without token, got %d", rec.Code)
	}

	if rec := doJSON(srv, http.MethodPost, "/api/v1/auth/token", gin.H{"username": "admin", "password": "wrong"}, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong password, got %d", rec.Code)
	}

	rec := doJSON(srv, http.MethodPost, "/api/v1/auth/token", gin.H{"username": "admin", "password": "hunter2"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	token, _ := decode(t, rec)["token"].(string)

	rec = doJSON(srv, http.MethodPost, "/api/v1/extract", payload, http.Header{"Authorization": {"Bearer " + token}})
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with token, got %d", rec.Code)
	}
}

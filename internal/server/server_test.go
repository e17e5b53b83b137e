package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/doc-extract/internal/document"
	"github.com/sells-group/doc-extract/internal/model"
	"github.com/sells-group/doc-extract/internal/pipeline"
	"github.com/sells-group/doc-extract/internal/store"
)

// fakeRunner resolves "ok*.pdf" paths and fails the rest by name.
type fakeRunner struct {
	mu   sync.Mutex
	reqs []model.ExtractionRequest
	opts []pipeline.RunOptions
}

func (f *fakeRunner) Run(_ context.Context, req model.ExtractionRequest, opts pipeline.RunOptions) (*model.ExtractionResult, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()

	if err := pipeline.Validate(req); err != nil {
		return nil, err
	}
	switch {
	case strings.HasPrefix(req.PDFPath, "missing"):
		return nil, &document.PathError{Path: req.PDFPath}
	case strings.HasPrefix(req.PDFPath, "empty"):
		return nil, &document.DocumentError{Reason: document.ReasonNoText}
	case strings.HasPrefix(req.PDFPath, "boom"):
		return nil, errors.New("redis exploded")
	}

	v := "JOANA D'ARC"
	var fields model.FieldResults
	for name := range req.Schema.All() {
		fields.Set(name, model.FieldResult{Value: &v, Confidence: 0.9, Source: model.SourceLLM, Details: map[string]any{}})
	}
	return &model.ExtractionResult{
		Label:  req.Label,
		Fields: fields,
		Meta:   model.ExtractionMeta{CacheKey: "extract:" + req.Label, Trace: model.Trace{LLMResolved: req.Schema.Keys(), Unresolved: []string{}}},
	}, nil
}

func (f *fakeRunner) lastOpts() pipeline.RunOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts[len(f.opts)-1]
}

func newTestServer(t *testing.T, opts Options, extra ...Option) (*fakeRunner, http.Handler) {
	t.Helper()
	fr := &fakeRunner{}
	return fr, New(fr, opts, extra...).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const extractBody = `{"label":"carteira_oab","extraction_schema":{"nome":"Nome","inscricao":"Numero"},"pdf_path":"ok.pdf"}`

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, Options{Env: "staging"})
	rec := do(t, h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "healthy", "environment": "staging"}, decode(t, rec))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeaders_HSTSInProduction(t *testing.T) {
	_, h := newTestServer(t, Options{Env: "production"})
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=")
}

func TestReady(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	_, h := newTestServer(t, Options{}, WithChecks(
		Check{Name: "redis", Run: ok},
		Check{Name: "llm", Run: ok, Ready: "configured"},
	))
	rec := do(t, h, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, map[string]any{"redis": "ok", "llm": "configured"}, body["checks"])

	_, h = newTestServer(t, Options{}, WithChecks(
		Check{Name: "redis", Run: down},
		Check{Name: "llm", Run: ok, Ready: "configured"},
	))
	rec = do(t, h, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "not_ready", body["status"])
	assert.Equal(t, "error: connection refused", body["checks"].(map[string]any)["redis"])
}

func TestExtract(t *testing.T) {
	fr, h := newTestServer(t, Options{})
	rec := do(t, h, http.MethodPost, "/extract", extractBody)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.True(t, fr.lastOpts().UseCache)

	// Field order follows the request schema.
	raw := rec.Body.String()
	assert.Less(t, strings.Index(raw, `"nome"`), strings.Index(raw, `"inscricao"`))

	body := decode(t, rec)
	assert.Equal(t, "carteira_oab", body["label"])
}

func TestExtract_UseCacheParam(t *testing.T) {
	fr, h := newTestServer(t, Options{})

	rec := do(t, h, http.MethodPost, "/extract?use_cache=false", extractBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, fr.lastOpts().UseCache)

	rec = do(t, h, http.MethodPost, "/extract?use_cache=maybe", extractBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtract_ErrorMapping(t *testing.T) {
	_, h := newTestServer(t, Options{})
	tests := []struct {
		name string
		body string
		code int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"duplicate schema key", `{"label":"x","extraction_schema":{"a":"1","a":"2"},"pdf_path":"ok.pdf"}`, http.StatusBadRequest},
		{"empty schema", `{"label":"x","extraction_schema":{},"pdf_path":"ok.pdf"}`, http.StatusBadRequest},
		{"missing label", `{"extraction_schema":{"a":"1"},"pdf_path":"ok.pdf"}`, http.StatusBadRequest},
		{"missing file", `{"label":"x","extraction_schema":{"a":"1"},"pdf_path":"missing.pdf"}`, http.StatusNotFound},
		{"empty document", `{"label":"x","extraction_schema":{"a":"1"},"pdf_path":"empty.pdf"}`, http.StatusUnprocessableEntity},
		{"internal", `{"label":"x","extraction_schema":{"a":"1"},"pdf_path":"boom.pdf"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/extract", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}

	rec := do(t, h, http.MethodPost, "/extract", `{"label":"x","extraction_schema":{"a":"1"},"pdf_path":"boom.pdf"}`)
	assert.Equal(t, "internal server error", decode(t, rec)["error"])
}

func multipartUpload(t *testing.T, fields map[string]string, fileType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if data != nil {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="card.pdf"`)
		hdr.Set("Content-Type", fileType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, h http.Handler, fields map[string]string, fileType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartUpload(t, fields, fileType, data)
	req := httptest.NewRequest(http.MethodPost, "/extract/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUpload(t *testing.T) {
	fr, h := newTestServer(t, Options{})
	fields := map[string]string{"label": "carteira_oab", "extraction_schema": `{"nome":"Nome"}`, "use_cache": "false"}

	rec := upload(t, h, fields, "application/pdf", []byte("%PDF-1.4 fake"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	fr.mu.Lock()
	req := fr.reqs[len(fr.reqs)-1]
	fr.mu.Unlock()
	assert.Equal(t, []byte("%PDF-1.4 fake"), req.PDFBytes)
	assert.Equal(t, "card.pdf", req.PDFPath)
	assert.False(t, fr.lastOpts().UseCache)
}

func TestUpload_ContentTypeParameters(t *testing.T) {
	_, h := newTestServer(t, Options{})
	fields := map[string]string{"label": "carteira_oab", "extraction_schema": `{"nome":"Nome"}`}

	for _, ct := range []string{`application/pdf; name="card.pdf"`, "Application/PDF"} {
		rec := upload(t, h, fields, ct, []byte("%PDF-1.4 fake"))
		assert.Equal(t, http.StatusOK, rec.Code, ct)
	}

	rec := upload(t, h, fields, "application/pdfx", []byte("%PDF-1.4 fake"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_Rejections(t *testing.T) {
	_, h := newTestServer(t, Options{MaxUploadBytes: 16})
	fields := map[string]string{"label": "x", "extraction_schema": `{"a":"1"}`}

	rec := upload(t, h, fields, "image/png", []byte("png"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "image/png")

	rec = upload(t, h, fields, "application/pdf", []byte{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, h, fields, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, h, map[string]string{"label": "x", "extraction_schema": "not json"}, "application/pdf", []byte("pdf"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "extraction_schema")

	rec = upload(t, h, fields, "application/pdf", bytes.Repeat([]byte("x"), 64))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// sseEvents parses "data: ..." lines from an event stream.
func sseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestBatch_StreamsEvents(t *testing.T) {
	fr, h := newTestServer(t, Options{BatchConcurrency: 2})
	body := `{"items":[
		{"label":"a","extraction_schema":{"f":"d"},"pdf_path":"ok1.pdf"},
		{"label":"b","extraction_schema":{"f":"d"},"pdf_path":"missing.pdf"},
		{"label":"c","extraction_schema":{"f":"d"},"pdf_path":"ok2.pdf"}
	],"use_cache":false}`

	rec := do(t, h, http.MethodPost, "/extract/batch", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.False(t, fr.lastOpts().UseCache)

	events := sseEvents(t, rec.Body.String())
	require.Len(t, events, 4)

	statuses := map[string]int{}
	for _, ev := range events[:3] {
		statuses[ev["status"].(string)]++
		if ev["status"] == "error" {
			assert.Equal(t, "b", ev["label"])
			assert.Contains(t, ev["error"], "missing.pdf")
		} else {
			assert.NotNil(t, ev["fields"])
			assert.NotNil(t, ev["meta"])
		}
	}
	assert.Equal(t, map[string]int{"completed": 2, "error": 1}, statuses)

	summary := events[3]
	assert.Equal(t, "done", summary["status"])
	assert.Equal(t, 3.0, summary["total"])
	assert.Equal(t, 2.0, summary["successful"])
	assert.Equal(t, 1.0, summary["failed"])
}

func TestBatch_Limits(t *testing.T) {
	_, h := newTestServer(t, Options{BatchMaxSize: 1})

	rec := do(t, h, http.MethodPost, "/extract/batch", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/extract/batch", `{"items":[
		{"label":"a","extraction_schema":{"f":"d"},"pdf_path":"ok.pdf"},
		{"label":"b","extraction_schema":{"f":"d"},"pdf_path":"ok.pdf"}
	]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = do(t, h, http.MethodPost, "/extract/batch", `{"items":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func newRunStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestEvaluate(t *testing.T) {
	st := newRunStore(t)
	_, h := newTestServer(t, Options{}, WithRunStore(st))
	body := `{"items":[
		{"label":"a","extraction_schema":{"nome":"d"},"pdf_path":"ok.pdf","gt":{"nome":"Joana D'Arc"}},
		{"label":"b","extraction_schema":{"nome":"d"},"pdf_path":"missing.pdf","gt":{"nome":"x"}}
	]}`

	rec := do(t, h, http.MethodPost, "/evaluate", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode(t, rec)
	runID, _ := out["run_id"].(string)
	require.NotEmpty(t, runID)

	summary := out["summary"].(map[string]any)
	counters := summary["counters"].(map[string]any)
	assert.Equal(t, 2.0, counters["items_received"])
	assert.Equal(t, 1.0, counters["docs_evaluated"])
	assert.Equal(t, 1.0, counters["docs_failed"])
	metrics := summary["metrics"].(map[string]any)
	assert.Equal(t, 1.0, metrics["accuracy_overall"])
	assert.Len(t, out["documents"], 2)

	rec = do(t, h, http.MethodGet, "/runs/"+runID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode(t, rec)
	assert.Equal(t, "complete", run["status"])
	assert.Equal(t, 2.0, run["summary"].(map[string]any)["items_received"])

	rec = do(t, h, http.MethodGet, "/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["runs"], 1)

	rec = do(t, h, http.MethodGet, "/runs?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/runs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunsRoutesRequireStore(t *testing.T) {
	_, h := newTestServer(t, Options{})
	rec := do(t, h, http.MethodGet, "/runs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t, Options{CORSOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/extract", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverer(t *testing.T) {
	s := New(panicRunner{}, Options{})
	rec := do(t, s.Handler(), http.MethodPost, "/extract", extractBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panicRunner struct{}

func (panicRunner) Run(context.Context, model.ExtractionRequest, pipeline.RunOptions) (*model.ExtractionResult, error) {
	panic("boom")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(store.ErrNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(&pipeline.ValidationError{Field: "x"}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("x")))
}

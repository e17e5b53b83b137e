package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/doc-extract/internal/evaluation"
	"github.com/sells-group/doc-extract/internal/model"
	"github.com/sells-group/doc-extract/internal/pipeline"
	"github.com/sells-group/doc-extract/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "healthy",
		"environment": s.opts.Env,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.ReadyTimeout)
	defer cancel()

	ready := true
	checks := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err := c.Run(ctx); err != nil {
			ready = false
			checks[c.Name] = "error: " + err.Error()
			continue
		}
		checks[c.Name] = c.Ready
		if c.Ready == "" {
			checks[c.Name] = "ok"
		}
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":      status,
		"checks":      checks,
		"environment": s.opts.Env,
	})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	useCache, err := useCacheParam(r.URL.Query().Get("use_cache"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req model.ExtractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.runner.Run(r.Context(), req, pipeline.RunOptions{UseCache: useCache})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "uploaded file is too large")
			return
		}
		writeMessage(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	useCache, err := useCacheParam(firstNonEmpty(r.FormValue("use_cache"), r.URL.Query().Get("use_cache")))
	if err != nil {
		writeError(w, err)
		return
	}

	var schema model.ExtractionSchema
	if err := json.Unmarshal([]byte(r.FormValue("extraction_schema")), &schema); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid extraction_schema JSON: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Size > s.opts.MaxUploadBytes {
		writeMessage(w, http.StatusRequestEntityTooLarge, "uploaded file is too large")
		return
	}
	if ct := header.Header.Get("Content-Type"); !isPDFContentType(ct) {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid file type: %s. Only PDF files are supported", ct))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "failed to read uploaded file: "+err.Error())
		return
	}
	if len(data) == 0 {
		writeMessage(w, http.StatusBadRequest, "uploaded PDF file is empty")
		return
	}

	req := model.ExtractionRequest{
		Label:    r.FormValue("label"),
		Schema:   schema,
		PDFPath:  header.Filename,
		PDFBytes: data,
	}
	result, err := s.runner.Run(r.Context(), req, pipeline.RunOptions{UseCache: useCache})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// batchRequest is the body of the batch and evaluate endpoints. UseCache
// defaults to true.
type batchRequest struct {
	Items    []model.BatchItem `json:"items"`
	UseCache *bool             `json:"use_cache"`
}

func (s *Server) decodeBatch(w http.ResponseWriter, r *http.Request) (*batchRequest, bool) {
	var body batchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid batch item format: "+err.Error())
		return nil, false
	}
	if len(body.Items) == 0 {
		writeMessage(w, http.StatusBadRequest, "batch cannot be empty. Provide at least one item")
		return nil, false
	}
	if len(body.Items) > s.opts.BatchMaxSize {
		writeMessage(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch size (%d) exceeds maximum allowed (%d)", len(body.Items), s.opts.BatchMaxSize))
		return nil, false
	}
	if body.UseCache == nil {
		useCache, err := useCacheParam(r.URL.Query().Get("use_cache"))
		if err != nil {
			writeError(w, err)
			return nil, false
		}
		body.UseCache = &useCache
	}
	return &body, true
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	send := func(v any) {
		data, err := json.Marshal(v)
		if err != nil {
			zap.L().Error("server: marshal batch event", zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			zap.L().Warn("server: write batch event", zap.Error(err))
			return
		}
		_ = rc.Flush()
	}

	reqs := make([]model.ExtractionRequest, len(body.Items))
	for i, it := range body.Items {
		reqs[i] = it.Request()
	}

	summary := pipeline.RunBatch(r.Context(), s.runner, reqs, pipeline.BatchOptions{
		UseCache:    *body.UseCache,
		Concurrency: s.opts.BatchConcurrency,
	}, func(item pipeline.BatchItemResult) { send(item) })
	send(summary)
}

// evaluateResponse wraps a report with the id of the persisted run.
type evaluateResponse struct {
	RunID string `json:"run_id,omitempty"`
	*evaluation.Report
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var run *model.EvalRun
	if s.runs != nil {
		var err error
		if run, err = s.runs.CreateRun(ctx, "http"); err != nil {
			zap.L().Warn("server: create eval run", zap.Error(err))
		}
	}

	runner := evaluation.NewRunner(s.runner, s.opts.BatchConcurrency)
	report, err := runner.Run(ctx, body.Items, evaluation.Options{UseCache: *body.UseCache}, nil)
	if err != nil {
		s.finishRun(ctx, run, nil, err)
		writeError(w, err)
		return
	}
	report.Dataset = "http"
	s.finishRun(ctx, run, report, nil)

	resp := evaluateResponse{Report: report}
	if run != nil {
		resp.RunID = run.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) finishRun(ctx context.Context, run *model.EvalRun, report *evaluation.Report, runErr error) {
	if run == nil {
		return
	}
	var err error
	if runErr != nil {
		err = s.runs.FailRun(ctx, run.ID, runErr)
	} else {
		err = s.runs.CompleteRun(ctx, run.ID, report.Summary.RunSummary())
	}
	if err != nil {
		zap.L().Warn("server: record eval run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, &pipeline.ValidationError{Field: name, Message: "must be a non-negative integer"})
			return
		}
		*dst = n
	}

	runs, err := s.runs.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []model.EvalRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// useCacheParam parses an optional boolean, defaulting to true.
func useCacheParam(v string) (bool, error) {
	if strings.TrimSpace(v) == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &pipeline.ValidationError{Field: "use_cache", Message: "must be true or false"}
	}
	return b, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func isPDFContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == "application/pdf"
}

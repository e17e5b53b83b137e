package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/doc-extract/internal/document"
	"github.com/sells-group/doc-extract/internal/pipeline"
	"github.com/sells-group/doc-extract/internal/store"
)

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	var (
		vErr    *pipeline.ValidationError
		pathErr *document.PathError
		docErr  *document.DocumentError
	)
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.As(err, &pathErr), store.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &docErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError writes err with its mapped status. Internal errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("server: request failed", zap.Error(err))
		writeMessage(w, status, "internal server error")
		return
	}
	writeMessage(w, status, err.Error())
}

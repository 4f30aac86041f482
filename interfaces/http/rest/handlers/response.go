package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	msgInvalidBody  = "Invalid request body"
	msgBodyTooLarge = "Request body too large"
)

var errNotAnObject = errors.New("request body is not a JSON object")

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Message string `json:"message"`
}

// respondJSON writes data as JSON with an explicit Content-Length so the
// response size is known to the metrics middleware.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"message":"Internal server error"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Message: message})
}

// decodeObject reads at most limit bytes and decodes them into dst. Bodies
// that are not a JSON object are rejected.
func decodeObject(w http.ResponseWriter, r *http.Request, limit int64, dst interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return err
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return errNotAnObject
	}
	return json.Unmarshal(body, dst)
}

// respondBodyError answers a request whose body could not be decoded.
func respondBodyError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		respondError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
		return
	}
	respondError(w, http.StatusBadRequest, msgInvalidBody)
}

// parseID parses the {id} path parameter.
func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// requestAttributes describes the request on controller spans.
func requestAttributes(r *http.Request) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", r.Method),
		attribute.String("http.target", r.URL.Path),
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			attrs = append(attrs, attribute.String("http.route", pattern))
		}
	}
	return attrs
}

// BodyLimit caps the number of bytes read from a request body.
type BodyLimit int64

// DefaultBodyLimit is used when a handler is built with a non-positive limit.
const DefaultBodyLimit BodyLimit = 1 << 20

func (l BodyLimit) bytes() int64 {
	if l <= 0 {
		return int64(DefaultBodyLimit)
	}
	return int64(l)
}

// logFailure logs server faults at error level and client faults at debug.
func logFailure(logger *zap.Logger, msg string, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Int("status", status), zap.Error(err))
		return
	}
	logger.Debug(msg, zap.Int("status", status), zap.Error(err))
}

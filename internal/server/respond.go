package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/koustreak/omem/internal/errs"
	"github.com/koustreak/omem/internal/logger"
)

const maxBodyBytes = 1 << 20

// statusBody is the envelope for acknowledgements and errors. Category is
// set on errors only and names the error kind.
type statusBody struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	Category   string `json:"category,omitempty"`
	Message    string `json:"message"`
}

func newStatus(code int, msg string) statusBody {
	return statusBody{Status: statusName(code), StatusCode: code, Message: msg}
}

// statusName turns 400 into "BAD_REQUEST".
func statusName(code int) string {
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(code), " ", "_"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, newStatus(code, msg))
}

// httpStatus maps an error kind to its response code.
func httpStatus(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindInvalidInput, errs.ErrKindUnsupportedDataType,
		errs.ErrKindMalformedTimestamp, errs.ErrKindNotRegistered:
		return http.StatusBadRequest
	case errs.ErrKindUnauthorized:
		return http.StatusUnauthorized
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindDuplicateActor:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the client-facing message for client errors and
// a generic one for server faults, which are logged with their cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	code := httpStatus(kind)
	if !kind.ClientFacing() {
		logger.FromContext(r.Context()).ErrorWith("request failed", err, logger.Fields{
			"kind": kind.String(),
		})
		writeCategorized(w, code, kind, "internal server error")
		return
	}

	msg := err.Error()
	var e *errs.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	writeCategorized(w, code, kind, msg)
}

func writeCategorized(w http.ResponseWriter, code int, kind errs.ErrKind, msg string) {
	body := newStatus(code, msg)
	body.Category = kind.String()
	writeJSON(w, code, body)
}

// decodeJSON reads one JSON object into dst, rejecting unknown fields and
// trailing data.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "malformed request body", err)
	}
	if dec.More() {
		return errs.New(errs.ErrKindInvalidInput, "request body must hold a single object")
	}
	return nil
}

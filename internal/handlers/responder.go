// File: internal/handlers/responder.go
package handlers

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// responder owns the single response of one request. The first write
// finalizes it; later writes are dropped and reported as false.
type responder struct {
	w         http.ResponseWriter
	r         *http.Request
	logger    Logger
	finalized atomic.Bool
}

func newResponder(w http.ResponseWriter, r *http.Request, logger Logger) *responder {
	return &responder{w: w, r: r, logger: logger}
}

func (rs *responder) claim() bool {
	if rs.finalized.CompareAndSwap(false, true) {
		return true
	}
	rs.logger.Warn("response already sent, dropping duplicate", "path", rs.r.URL.Path)
	return false
}

func (rs *responder) JSON(status int, data interface{}) bool {
	if !rs.claim() {
		return false
	}
	writeJSON(rs.w, status, data)
	return true
}

func (rs *responder) Error(status int, message string, details interface{}) bool {
	if !rs.claim() {
		return false
	}
	writeError(rs.w, status, message, details)
	return true
}

func (rs *responder) Raw(status int, contentType string, body []byte) bool {
	if !rs.claim() {
		return false
	}
	rs.w.Header().Set("Content-Type", contentType)
	rs.w.WriteHeader(status)
	_, _ = rs.w.Write(body)
	return true
}

func (rs *responder) Finalized() bool {
	return rs.finalized.Load()
}

// writeJSON is a helper for sending JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError sends the common {success:false, error, details?} body.
func writeError(w http.ResponseWriter, status int, message string, details interface{}) {
	body := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	if details != nil {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

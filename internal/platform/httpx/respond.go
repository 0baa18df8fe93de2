// Package httpx writes JSON and RFC7807 problem responses and decodes request bodies.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// MaxBodyBytes caps request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

const problemContentType = "application/problem+json"

var errTrailingData = errors.New("unexpected data after JSON document")

// ProblemDetail is an RFC7807 problem document.
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes data with the given status.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, "application/json", status, data)
}

// Problem writes a problem document. Type is left as about:blank so Title carries the meaning.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	write(w, problemContentType, status, ProblemDetail{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func write(w http.ResponseWriter, contentType string, status int, data any) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// DecodeJSON decodes a single JSON document from the body into target. Bodies over
// MaxBodyBytes, trailing documents and an empty body are errors.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/diagnosis/signnatural-api/internal/http/response"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object into dst and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			response.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large", response.CodeInvalidInput)
		case errors.Is(err, io.EOF):
			response.BadRequest(w, "Request body is empty")
		default:
			response.BadRequest(w, "Invalid JSON")
		}
		return false
	}
	return true
}

// with applies mw when it is set.
func with(mw func(http.Handler) http.Handler, h http.HandlerFunc) http.Handler {
	if mw == nil {
		return h
	}
	return mw(h)
}

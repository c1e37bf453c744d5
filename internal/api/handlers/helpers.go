// Package handlers implements the native and OpenAI-compatible HTTP
// surfaces over the job pipeline.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/nr2bj/transcribe-server/internal/apperr"
)

// jsonResponse writes data as a JSON body with the given status code.
// Grounded on the teacher's handlers.jsonResponse helper.
func jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// jsonError writes a flat {"error": msg} body, used for requests that
// fail before a job-pipeline error can be classified.
func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// apiErrorBody is the shape used by the native error taxonomy (§7): the
// status endpoint and every admission failure returns the full
// classified error object, not just a flat message.
type apiErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Details string `json:"details,omitempty"`
	} `json:"error"`
}

// writeAppErr translates a classified apperr.Error (or any error, via
// apperr.As) into its §6 HTTP status code and §7 error body shape.
func writeAppErr(w http.ResponseWriter, err error) {
	e := apperr.As(err)
	var body apiErrorBody
	body.Error.Type = string(e.Kind)
	body.Error.Message = e.Message
	body.Error.Details = e.Details
	jsonResponse(w, body, apperr.HTTPStatus(e.Kind))
}

// openaiErrorBody matches the well-known OpenAI-compatible error shape
// used by the inline transcription/translation endpoints (§7).
type openaiErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeOpenAIErr(w http.ResponseWriter, err error, status int) {
	e := apperr.As(err)
	var body openaiErrorBody
	body.Error.Type = openaiErrorType(e.Kind)
	body.Error.Message = e.Message
	if status == 0 {
		status = apperr.HTTPStatus(e.Kind)
	}
	jsonResponse(w, body, status)
}

// openaiErrorType collapses the native error taxonomy into the two
// error types the OpenAI-compatible clients actually branch on.
func openaiErrorType(kind apperr.Kind) string {
	switch kind {
	case apperr.KindValidation, apperr.KindPayloadTooLarge, apperr.KindNotFound:
		return "invalid_request_error"
	default:
		return "server_error"
	}
}

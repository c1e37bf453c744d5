package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nr2bj/transcribe-server/internal/apperr"
)

func TestJSONResponseWritesStatusAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	jsonResponse(rec, map[string]string{"ok": "true"}, http.StatusCreated)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "true", body["ok"])
}

func TestJSONErrorWritesFlatBody(t *testing.T) {
	rec := httptest.NewRecorder()
	jsonError(rec, "bad request", http.StatusBadRequest)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "bad request", body["error"])
}

func TestWriteAppErrTranslatesClassifiedError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeAppErr(rec, apperr.New(apperr.KindNotFound, "job not found"))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body apiErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, string(apperr.KindNotFound), body.Error.Type)
	require.Equal(t, "job not found", body.Error.Message)
}

func TestWriteAppErrWrapsUnclassifiedError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeAppErr(rec, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body apiErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, string(apperr.KindInternal), body.Error.Type)
}

func TestWriteOpenAIErrUsesKindDerivedStatusWhenZero(t *testing.T) {
	rec := httptest.NewRecorder()
	writeOpenAIErr(rec, apperr.New(apperr.KindValidation, "missing file"), 0)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body openaiErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "invalid_request_error", body.Error.Type)
}

func TestWriteOpenAIErrHonorsExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	writeOpenAIErr(rec, apperr.New(apperr.KindTimeout, "timed out"), http.StatusGatewayTimeout)

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestOpenAIErrorTypeMapping(t *testing.T) {
	require.Equal(t, "invalid_request_error", openaiErrorType(apperr.KindValidation))
	require.Equal(t, "invalid_request_error", openaiErrorType(apperr.KindPayloadTooLarge))
	require.Equal(t, "invalid_request_error", openaiErrorType(apperr.KindNotFound))
	require.Equal(t, "server_error", openaiErrorType(apperr.KindInternal))
	require.Equal(t, "server_error", openaiErrorType(apperr.KindTranscription))
}

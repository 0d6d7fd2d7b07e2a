package httpapi_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudledger/jobcore/internal/httpapi"
)

func TestRespond_WritesJSONAndStatus(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	httpapi.Respond(rec, 201, map[string]string{"status": "created"})

	require.Equal(t, 201, rec.Code)
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "created", body["status"])
}

func TestRespondError_WritesEnvelope(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	httpapi.RespondError(rec, 400, "bad_request", "missing field")

	require.Equal(t, 400, rec.Code)

	var body httpapi.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "bad_request", body.Error)
	require.Equal(t, "missing field", body.Message)
}

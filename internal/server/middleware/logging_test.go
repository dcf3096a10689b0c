package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveLogged runs a request through Auth -> Logging (the production nesting)
// and returns the decoded log line.
func serveLogged(t *testing.T, r *http.Request, status int) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
	h := Auth(false)(Logging(logger)(inner))

	h.ServeHTTP(httptest.NewRecorder(), r)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestLoggingIncludesAuthenticatedCaller(t *testing.T) {
	addr := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	r := httptest.NewRequest(http.MethodPost, "/api/polls", nil)
	r.Header.Set(HeaderAddress, addr.Hex())

	line := serveLogged(t, r, http.StatusCreated)

	assert.Equal(t, "http request", line["msg"])
	assert.Equal(t, http.MethodPost, line["method"])
	assert.Equal(t, "/api/polls", line["path"])
	assert.Equal(t, float64(http.StatusCreated), line["status"])
	assert.Equal(t, addr.Hex(), line["caller"])
}

func TestLoggingOmitsCallerWhenUnauthenticated(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/polls?limit=10", nil)

	line := serveLogged(t, r, http.StatusOK)

	assert.Equal(t, float64(http.StatusOK), line["status"])
	assert.Equal(t, "limit=10", line["query"])
	_, present := line["caller"]
	assert.False(t, present)
}

func TestLoggingCapturesImplicitOKStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok")) // no explicit WriteHeader
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, float64(http.StatusOK), line["status"])
}

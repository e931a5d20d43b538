package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*gin.Engine, *harness) {
	gin.SetMode(gin.TestMode)
	h := newHarness(t)
	r := gin.New()
	NewHandler(h.mgr).RegisterRoutes(r.Group("/v1"))
	return r, h
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_MonitorAndStatus(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(r, http.MethodPost, "/v1/monitor", AddressRequest{Address: addrA})
	require.Equal(t, http.StatusOK, w.Code)
	var res Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)

	w = doJSON(r, http.MethodPost, "/v1/monitor", AddressRequest{Address: addrA})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "already being monitored")

	w = doJSON(r, http.MethodGet, "/v1/status/"+addrA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var s Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, addrA, s.Address)
	assert.Equal(t, uint64(100), s.LastCheckedBlock)
	assert.True(t, s.IsActive)
}

func TestHandler_InvalidAddress(t *testing.T) {
	r, _ := setupRouter(t)

	for _, path := range []string{"/v1/monitor", "/v1/stop"} {
		w := doJSON(r, http.MethodPost, path, AddressRequest{Address: "0x123"})
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Contains(t, w.Body.String(), "Invalid address provided")
	}

	w := doJSON(r, http.MethodPost, "/v1/monitor", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/v1/status/nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_StatusNotFound(t *testing.T) {
	r, _ := setupRouter(t)
	w := doJSON(r, http.MethodGet, "/v1/status/"+addrB, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Address not found")
}

func TestHandler_StopAndList(t *testing.T) {
	r, h := setupRouter(t)
	h.mgr.StartMonitoring(t.Context(), addrA)
	h.mgr.StartMonitoring(t.Context(), addrB)

	w := doJSON(r, http.MethodPost, "/v1/stop", AddressRequest{Address: addrB})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Stopped monitoring address "+addrB)

	w = doJSON(r, http.MethodPost, "/v1/stop", AddressRequest{Address: addrB})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "is not being monitored")

	w = doJSON(r, http.MethodGet, "/v1/addresses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Addresses []Session `json:"addresses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Addresses, 1)
	assert.Equal(t, addrA, body.Addresses[0].Address)
}

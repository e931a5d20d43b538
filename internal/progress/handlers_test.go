package progress

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

const testAddr = "0x1111111111111111111111111111111111111111"

func setupRouter() (*gin.Engine, *Service) {
	gin.SetMode(gin.TestMode)
	svc := newTestService(NewMemoryStore())
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/v1"))
	return r, svc
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

func TestHandler_GetProgress_Default(t *testing.T) {
	r, _ := setupRouter()

	w := doJSON(r, http.MethodGet, "/v1/progress/"+testAddr, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var p UserProgress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, testAddr, p.Address)
}

func TestHandler_GetProgress_InvalidAddress(t *testing.T) {
	r, _ := setupRouter()
	w := doJSON(r, http.MethodGet, "/v1/progress/not-an-address", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid address provided")
}

func TestHandler_ApplyAction(t *testing.T) {
	r, _ := setupRouter()

	w := doJSON(r, http.MethodPost, "/v1/progress/"+testAddr+"/actions", map[string]any{
		"action":  "TRANSACTION_ANALYZED",
		"context": map[string]any{"complexity": 4},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var res Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, uint64(14), res.XPGained)
	assert.Equal(t, []string{"FIRST_ANALYSIS"}, res.Progress.AchievementIDs())
}

func TestHandler_ApplyAction_Unknown(t *testing.T) {
	r, _ := setupRouter()
	w := doJSON(r, http.MethodPost, "/v1/progress/"+testAddr+"/actions", map[string]any{"action": "DANCE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_action")
}

func TestHandler_PutProgress(t *testing.T) {
	r, _ := setupRouter()

	w := doJSON(r, http.MethodPut, "/v1/progress/"+testAddr, map[string]any{
		"xp":           225,
		"achievements": []map[string]any{{"id": "FIRST_ANALYSIS"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var p UserProgress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, 4, p.Level)

	w = doJSON(r, http.MethodPut, "/v1/progress/"+testAddr, map[string]any{
		"achievements": []map[string]any{{"id": "MADE_UP"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ListAchievements(t *testing.T) {
	r, _ := setupRouter()
	w := doJSON(r, http.MethodGet, "/v1/achievements", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "CONTRACT_CONNOISSEUR")
}

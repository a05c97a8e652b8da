package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingGauge struct {
	mu    sync.Mutex
	state map[string]bool
}

func (g *recordingGauge) SetHealth(component string, up bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == nil {
		g.state = map[string]bool{}
	}
	g.state[component] = up
}

func serve(t *testing.T, h *HealthHandler, path string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func ok(context.Context) error { return nil }

func TestHealthHandler_Liveness(t *testing.T) {
	w := serve(t, NewHealthHandler("1.2.3", nil), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestHealthHandler_Readiness(t *testing.T) {
	t.Run("no checkers", func(t *testing.T) {
		w := serve(t, NewHealthHandler("dev", nil), "/readyz")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"ready"`)
	})

	t.Run("all healthy", func(t *testing.T) {
		g := &recordingGauge{}
		h := NewHealthHandler("dev", g,
			CheckFunc{Component: "postgres", Fn: ok},
			CheckFunc{Component: "redis", Fn: ok})
		w := serve(t, h, "/readyz")
		require.Equal(t, http.StatusOK, w.Code)

		var resp ReadinessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ready", resp.Status)
		assert.Len(t, resp.Components, 2)
		assert.Equal(t, map[string]bool{"postgres": true, "redis": true}, g.state)
	})

	t.Run("one dependency down", func(t *testing.T) {
		g := &recordingGauge{}
		h := NewHealthHandler("dev", g,
			CheckFunc{Component: "postgres", Fn: ok},
			CheckFunc{Component: "redis", Fn: func(context.Context) error { return errors.New("connection refused") }})
		w := serve(t, h, "/readyz")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)

		var resp ReadinessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "not_ready", resp.Status)
		assert.Equal(t, "healthy", resp.Components["postgres"].Status)
		assert.Equal(t, "unhealthy", resp.Components["redis"].Status)
		assert.Equal(t, "connection refused", resp.Components["redis"].Error)
		assert.False(t, g.state["redis"])
	})
}

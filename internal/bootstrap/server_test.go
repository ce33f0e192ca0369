package bootstrap

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminRouter_Health(t *testing.T) {
	testCases := []struct {
		name   string
		checks map[string]HealthCheck
		want   int
	}{
		{"No checks", nil, http.StatusOK},
		{"Healthy", map[string]HealthCheck{"redis": func(context.Context) error { return nil }}, http.StatusOK},
		{"Broken", map[string]HealthCheck{"kafka": func(context.Context) error { return errors.New("no brokers") }}, http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			AdminRouter(tc.checks).ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestAdminRouter_Metrics(t *testing.T) {
	w := httptest.NewRecorder()
	AdminRouter(nil).ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServe_StopsOnCancel(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), log) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second + shutdownTimeout):
		t.Fatal("server did not stop")
	}
}

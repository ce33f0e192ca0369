package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveWorkflow(t *testing.T) {
	before := testutil.ToFloat64(workflowOutcomes.WithLabelValues("confirm_payment", "ok"))

	ObserveWorkflow("confirm_payment", "ok")
	ObserveWorkflow("confirm_payment", "ok")

	assert.Equal(t, before+2, testutil.ToFloat64(workflowOutcomes.WithLabelValues("confirm_payment", "ok")))
}

func TestAddFanOutFailures_IgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(fanOutFailures)

	AddFanOutFailures(0)
	AddFanOutFailures(3)

	assert.Equal(t, before+3, testutil.ToFloat64(fanOutFailures))
}

func TestGinMiddleware_UsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/flights/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/flights/:id", "418"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/flights/42", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/flights/:id", "418")))
}

func TestHTTPMiddleware_Chi(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/health", "200"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/health", "200")))
}

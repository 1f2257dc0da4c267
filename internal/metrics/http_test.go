package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "200"},
		{304, "304"},
		{429, "429"},
		{201, "2xx"},
		{418, "4xx"},
		{599, "5xx"},
		{700, "700"},
	}
	for _, tt := range tests {
		if got := statusCode(tt.code); got != tt.want {
			t.Errorf("statusCode(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestHTTPMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := HTTPMiddleware(mux)

	route := "GET /v1/runs/{id}"
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues(http.MethodGet, route, "404"))
	unmatched := testutil.ToFloat64(HTTPRequests.WithLabelValues(http.MethodGet, unmatchedRoute, "404"))

	for _, id := range []string{"a", "b"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/runs/"+id, nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if got := testutil.ToFloat64(HTTPRequests.WithLabelValues(http.MethodGet, route, "404")) - before; got != 2 {
		t.Errorf("route requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(HTTPRequests.WithLabelValues(http.MethodGet, unmatchedRoute, "404")) - unmatched; got != 1 {
		t.Errorf("unmatched requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(HTTPInFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
}

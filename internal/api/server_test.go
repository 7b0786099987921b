package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/star/ephemgo/internal/cache"
	"github.com/star/ephemgo/internal/horizons"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func reportFor(name string, id int, x float64) string {
	return fmt.Sprintf(` Revised: Jan 01, 2024        %s        %d
 Vol. Mean Radius km = 1000.5
 Mass x10^24 kg= 2.5
 X = %E Y = 2.0E+00 Z = 3.0E+00
 VX= 1.0E+00 VY= 2.0E+00 VZ= 3.0E+00
`, name, id, x)
}

// fakeFetcher serves canned reports and fails for IDs in fail.
type fakeFetcher struct {
	mu      sync.Mutex
	reports map[int]string
	fail    map[int]bool
	calls   map[int]int
}

func (f *fakeFetcher) Fetch(_ context.Context, id int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[int]int{}
	}
	f.calls[id]++
	if f.fail[id] {
		return "", horizons.ErrUpstreamUnavailable
	}
	report, ok := f.reports[id]
	if !ok {
		return "", errors.New("unknown body")
	}
	return report, nil
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		reports: map[int]string{
			399: reportFor("Earth", 399, 1.234e8),
			301: reportFor("Moon", 301, 1.5e8),
			599: reportFor("Jupiter", 599, 7.0e8),
		},
		fail: map[int]bool{},
	}
}

func serve(t *testing.T, h http.Handler, target string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return w.Code, body
}

func TestPlanetSuccess(t *testing.T) {
	h := newHandler(Config{}, testLogger(), newFakeFetcher())

	code, body := serve(t, h, "/planet/399")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if body["name"] != "Earth" {
		t.Errorf("name = %v, want Earth", body["name"])
	}
	if body["radius_km"] != 1000.5 {
		t.Errorf("radius_km = %v, want 1000.5", body["radius_km"])
	}
	if body["mass_10^24_kg"] != 2.5 {
		t.Errorf("mass_10^24_kg = %v, want 2.5", body["mass_10^24_kg"])
	}
	pos := body["position_km"].(map[string]any)
	if pos["x"] != 123400000.0 {
		t.Errorf("position_km.x = %v, want 123400000", pos["x"])
	}
	for _, key := range []string{"albedo", "temperature_K"} {
		if v, ok := body[key]; !ok || v != nil {
			t.Errorf("%s = %v (present %v), want null", key, v, ok)
		}
	}
}

// TestPlanetUpstreamFailure verifies an upstream failure is a soft error:
// status 200 with an error object.
func TestPlanetUpstreamFailure(t *testing.T) {
	f := newFakeFetcher()
	f.fail[301] = true
	h := newHandler(Config{}, testLogger(), f)

	code, body := serve(t, h, "/planet/301")
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
	if body["error"] != errSingleUnavailable {
		t.Errorf("error = %v, want %q", body["error"], errSingleUnavailable)
	}
	if _, ok := body["name"]; ok {
		t.Error("error response should not carry record fields")
	}
}

func TestPlanetInvalidID(t *testing.T) {
	h := newHandler(Config{}, testLogger(), newFakeFetcher())

	for _, target := range []string{"/planet/earth", "/planet/3.5", "/planet/99999999999999999999"} {
		t.Run(target, func(t *testing.T) {
			code, body := serve(t, h, target)
			if code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", code)
			}
			if body["error"] == nil {
				t.Error("expected error field in response")
			}
		})
	}
}

// TestPlanetsBatchPartialFailure checks that one failing ID yields an error
// marker under its own key without affecting the others.
func TestPlanetsBatchPartialFailure(t *testing.T) {
	f := newFakeFetcher()
	f.fail[301] = true
	h := newHandler(Config{BatchConcurrency: 2}, testLogger(), f)

	code, body := serve(t, h, "/planets/?planet_ids=399,301,599")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if len(body) != 3 {
		t.Fatalf("got %d keys, want 3: %v", len(body), body)
	}

	wantNames := map[string]string{"399": "Earth", "599": "Jupiter"}
	for key, name := range wantNames {
		rec, ok := body[key].(map[string]any)
		if !ok {
			t.Fatalf("%s = %v, want record object", key, body[key])
		}
		if rec["name"] != name {
			t.Errorf("%s name = %v, want %s", key, rec["name"], name)
		}
	}

	marker, ok := body["301"].(map[string]any)
	if !ok {
		t.Fatalf("301 = %v, want error object", body["301"])
	}
	if marker["error"] != errBatchUnavailable {
		t.Errorf("301 error = %v, want %q", marker["error"], errBatchUnavailable)
	}
}

// TestPlanetsKeysAsGiven verifies result keys are the identifiers exactly as
// the client wrote them.
func TestPlanetsKeysAsGiven(t *testing.T) {
	h := newHandler(Config{}, testLogger(), newFakeFetcher())

	code, body := serve(t, h, "/planets/?planet_ids=399,%20599")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if _, ok := body["399"]; !ok {
		t.Error("missing key 399")
	}
	if _, ok := body[" 599"]; !ok {
		t.Errorf("missing key %q: %v", " 599", body)
	}
}

func TestPlanetsMalformedID(t *testing.T) {
	f := newFakeFetcher()
	h := newHandler(Config{}, testLogger(), f)

	tests := []string{
		"/planets/?planet_ids=399,abc,599",
		"/planets/?planet_ids=399,",
		"/planets/?planet_ids=",
		"/planets/",
	}
	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			code, body := serve(t, h, target)
			if code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", code)
			}
			if body["error"] == nil {
				t.Error("expected error field in response")
			}
		})
	}

	if len(f.calls) != 0 {
		t.Errorf("malformed batches must not reach the upstream, got calls %v", f.calls)
	}
}

// TestPlanetsEndToEnd runs the batch route against a fake Horizons server
// through the real fetcher and cache.
func TestPlanetsEndToEnd(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		command := r.URL.Query().Get("COMMAND")
		mu.Lock()
		calls[command]++
		mu.Unlock()

		switch command {
		case "'399'":
			w.Write([]byte(reportFor("Earth", 399, 1.234e8)))
		case "'599'":
			w.Write([]byte(reportFor("Jupiter", 599, 7.0e8)))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer upstream.Close()

	fetcher := horizons.NewFetcher(horizons.Config{SourceURL: upstream.URL}, cache.New(cache.DefaultCapacity), testLogger())
	h := newHandler(Config{}, testLogger(), fetcher)

	for round := 0; round < 2; round++ {
		code, body := serve(t, h, "/planets/?planet_ids=399,301,599")
		if code != http.StatusOK {
			t.Fatalf("round %d: status = %d, want 200", round, code)
		}
		if len(body) != 3 {
			t.Fatalf("round %d: got %d keys, want 3", round, len(body))
		}
		if m := body["301"].(map[string]any); m["error"] != errBatchUnavailable {
			t.Errorf("round %d: 301 = %v, want error marker", round, m)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if calls["'399'"] != 1 || calls["'599'"] != 1 {
		t.Errorf("successful IDs should be fetched once, got %v", calls)
	}
	if calls["'301'"] != 2 {
		t.Errorf("failed ID should be retried each round, got %d calls", calls["'301'"])
	}
}

func TestProbes(t *testing.T) {
	h := newHandler(Config{}, testLogger(), newFakeFetcher())

	tests := []struct {
		path string
		want string
	}{
		{"/healthz", "ok\n"},
		{"/readyz", "ready\n"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", tt.path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK || w.Body.String() != tt.want {
			t.Errorf("%s = %d %q, want 200 %q", tt.path, w.Code, w.Body.String(), tt.want)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	h := newHandler(Config{}, testLogger(), newFakeFetcher())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ephemgo_http_requests_total") {
		t.Error("metrics output missing ephemgo_http_requests_total")
	}
}

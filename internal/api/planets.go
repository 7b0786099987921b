package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/star/ephemgo/internal/ephemeris"
)

// Soft error messages returned with status 200 when Horizons cannot be reached.
const (
	errSingleUnavailable = "unable to retrieve data"
	errBatchUnavailable  = "data unavailable"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// planetHandler serves GET /planet/{planet_id}. An upstream failure is
// answered with 200 and an error object rather than a failure status.
func planetHandler(logger *slog.Logger, fetcher Fetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.PathValue("planet_id")
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid planet_id %q: must be an integer", raw)})
			return
		}

		report, err := fetcher.Fetch(r.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusOK, errorBody{Error: errSingleUnavailable})
			return
		}

		writeJSON(w, http.StatusOK, extract(logger, id, report))
	}
}

// planetsHandler serves GET /planets/?planet_ids=399,301,599. Every ID must
// parse as an integer or the whole request fails with 400. Upstream failures
// are isolated per ID: each key maps to a record or an error object.
func planetsHandler(logger *slog.Logger, fetcher Fetcher, concurrency int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !q.Has("planet_ids") {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing required query parameter planet_ids"})
			return
		}

		type item struct {
			key string
			id  int
		}
		var items []item
		for _, key := range strings.Split(q.Get("planet_ids"), ",") {
			id, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid planet id %q: must be an integer", key)})
				return
			}
			items = append(items, item{key: key, id: id})
		}

		var (
			mu      sync.Mutex
			results = make(map[string]any, len(items))
		)

		g := new(errgroup.Group)
		g.SetLimit(concurrency)
		for _, it := range items {
			g.Go(func() error {
				var result any
				if report, err := fetcher.Fetch(r.Context(), it.id); err != nil {
					result = errorBody{Error: errBatchUnavailable}
				} else {
					result = extract(logger, it.id, report)
				}

				mu.Lock()
				results[it.key] = result
				mu.Unlock()
				return nil
			})
		}
		g.Wait()

		writeJSON(w, http.StatusOK, results)
	}
}

// extract runs the extractor and flags reports that matched nothing, which
// usually means Horizons changed its layout or rejected the body ID.
func extract(logger *slog.Logger, id int, report string) ephemeris.Record {
	rec := ephemeris.Extract(report)
	if rec.Empty() {
		logger.Warn("report matched no known fields", "component", "api", "body_id", id, "bytes", len(report))
	}
	return rec
}

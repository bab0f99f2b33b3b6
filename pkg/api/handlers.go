package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// Server holds the API server state
type Server struct {
	tree    Backend
	config  ServerConfig
	metrics *Metrics
}

// NewServer creates a new API server
func NewServer(tree Backend, config ServerConfig, metrics *Metrics) *Server {
	return &Server{
		tree:    tree,
		config:  config,
		metrics: metrics,
	}
}

// keyFromPath parses the {key} path segment as the fixed-width u64 the
// byte-slice façade requires (spec.md's "Byte-slice façade": adapts 8-byte
// slices to u64) — no variable-length keys, no hashing or truncation.
func keyFromPath(r *http.Request) (uint64, error) {
	return parseU64(chi.URLParam(r, "key"))
}

func parseU64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a valid u64: %w", err)
	}
	return v, nil
}

// valueFromBody reads the u64 value out of a {"value": N} JSON body.
func valueFromBody(r *http.Request) (uint64, error) {
	var body struct {
		Value uint64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf(`invalid JSON body, expected {"value": <u64>}: %w`, err)
	}
	return body.Value, nil
}

func logOpError(r *http.Request, op string, err error) {
	log.Printf("fptreedb: request %s op=%s error=%v", requestIDFromContext(r.Context()), op, err)
}

// handleHealth reports process liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handleInsert stores a new key-value pair. insert fails if the key already
// exists; PATCH /kv/{key} updates an existing one.
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := keyFromPath(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	value, err := valueFromBody(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ok, err := s.tree.Insert(key, value)
	s.metrics.RecordTreeOperation("insert", err == nil && ok, time.Since(start))
	if err != nil {
		logOpError(r, "insert", err)
		sendError(w, fmt.Sprintf("insert failed: %v", err), http.StatusInternalServerError)
		return
	}
	if !ok {
		sendError(w, "key already exists", http.StatusConflict)
		return
	}

	sendSuccess(w, map[string]string{"message": "key inserted"})
}

// handleUpdate overwrites the value of an existing key.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := keyFromPath(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	value, err := valueFromBody(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ok, err := s.tree.Update(key, value)
	s.metrics.RecordTreeOperation("update", err == nil && ok, time.Since(start))
	if err != nil {
		logOpError(r, "update", err)
		sendError(w, fmt.Sprintf("update failed: %v", err), http.StatusInternalServerError)
		return
	}
	if !ok {
		sendError(w, "key not found", http.StatusNotFound)
		return
	}

	sendSuccess(w, map[string]string{"message": "key updated"})
}

// handleFind looks up the value for a key.
func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := keyFromPath(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	value, found := s.tree.Find(key)
	s.metrics.RecordTreeOperation("find", found, time.Since(start))
	if !found {
		sendError(w, "key not found", http.StatusNotFound)
		return
	}

	sendSuccess(w, map[string]uint64{"key": key, "value": value})
}

// handleDelete removes a key.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := keyFromPath(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ok, err := s.tree.DeleteKey(key)
	s.metrics.RecordTreeOperation("delete", err == nil && ok, time.Since(start))
	if err != nil {
		logOpError(r, "delete", err)
		sendError(w, fmt.Sprintf("delete failed: %v", err), http.StatusInternalServerError)
		return
	}
	if !ok {
		sendError(w, "key not found", http.StatusNotFound)
		return
	}

	sendSuccess(w, map[string]string{"message": "key deleted"})
}

// handleRangeScan returns up to n live pairs with key >= start.
func (s *Server) handleRangeScan(w http.ResponseWriter, r *http.Request) {
	begin := time.Now()
	startStr := r.URL.Query().Get("start")
	nStr := r.URL.Query().Get("n")
	if startStr == "" || nStr == "" {
		sendError(w, "start and n query parameters are required", http.StatusBadRequest)
		return
	}

	startKey, err := parseU64(startStr)
	if err != nil {
		sendError(w, fmt.Sprintf("invalid start: %v", err), http.StatusBadRequest)
		return
	}
	n, err := strconv.Atoi(nStr)
	if err != nil || n <= 0 {
		sendError(w, "invalid n: must be a positive integer", http.StatusBadRequest)
		return
	}

	kvs := s.tree.RangeScan(startKey, n)
	s.metrics.RecordTreeOperation("rangeScan", true, time.Since(begin))

	type pair struct {
		Key   uint64 `json:"key"`
		Value uint64 `json:"value"`
	}
	out := make([]pair, len(kvs))
	for i, kv := range kvs {
		out[i] = pair{Key: kv.Key, Value: kv.Value}
	}

	sendSuccess(w, map[string]interface{}{"pairs": out})
}

// handleStats reports tree occupancy and the speculative lock's cumulative
// retry/fallback counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.tree.Stats()
	retries, fallbacks := s.tree.LockStats()
	s.metrics.UpdateTreeStats(stats.Leaves, stats.KVs, stats.FillRatio)
	s.metrics.UpdateLockStats(retries, fallbacks)

	sendSuccess(w, map[string]interface{}{
		"leaves":         stats.Leaves,
		"kvs":            stats.KVs,
		"inner_capacity": stats.InnerCap,
		"leaf_capacity":  stats.LeafCap,
		"fill_ratio":     stats.FillRatio,
		"lock_retries":   retries,
		"lock_fallbacks": fallbacks,
	})
}

// startMetricsUpdater periodically refreshes the occupancy and lock gauges
// so /metrics reflects live state between direct /stats polls.
func (s *Server) startMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := s.tree.Stats()
		retries, fallbacks := s.tree.LockStats()
		s.metrics.UpdateTreeStats(stats.Leaves, stats.KVs, stats.FillRatio)
		s.metrics.UpdateLockStats(retries, fallbacks)
	}
}

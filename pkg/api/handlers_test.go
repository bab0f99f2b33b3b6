package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(newTestTree(t), ServerConfig{APIKey: "test-key"}, testMetrics)
}

func requestWithKey(method, path, key, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("key", key)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeResponse(t *testing.T, body []byte) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("failed to decode response: %v, body=%s", err, body)
	}
	return resp
}

func TestHandleInsertAndFind(t *testing.T) {
	server := newTestServer(t)

	w := httptest.NewRecorder()
	req := requestWithKey(http.MethodPut, "/kv/42", "42", `{"value": 100}`)
	server.handleInsert(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("insert status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if resp := decodeResponse(t, w.Body.Bytes()); !resp.Success {
		t.Errorf("insert response.Success = false, want true")
	}

	w = httptest.NewRecorder()
	req = requestWithKey(http.MethodGet, "/kv/42", "42", "")
	server.handleFind(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("find status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decodeResponse(t, w.Body.Bytes())
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("find response.Data = %#v, want map", resp.Data)
	}
	if data["value"].(float64) != 100 {
		t.Errorf("find value = %v, want 100", data["value"])
	}
}

func TestHandleInsertDuplicateKeyConflicts(t *testing.T) {
	server := newTestServer(t)

	req := requestWithKey(http.MethodPut, "/kv/1", "1", `{"value": 1}`)
	server.handleInsert(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	req = requestWithKey(http.MethodPut, "/kv/1", "1", `{"value": 2}`)
	server.handleInsert(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("duplicate insert status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestHandleFindMissingKey(t *testing.T) {
	server := newTestServer(t)

	w := httptest.NewRecorder()
	req := requestWithKey(http.MethodGet, "/kv/999", "999", "")
	server.handleFind(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleUpdate(t *testing.T) {
	server := newTestServer(t)

	req := requestWithKey(http.MethodPut, "/kv/7", "7", `{"value": 1}`)
	server.handleInsert(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	req = requestWithKey(http.MethodPatch, "/kv/7", "7", `{"value": 2}`)
	server.handleUpdate(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = requestWithKey(http.MethodGet, "/kv/7", "7", "")
	server.handleFind(w, req)
	data := decodeResponse(t, w.Body.Bytes()).Data.(map[string]interface{})
	if data["value"].(float64) != 2 {
		t.Errorf("value after update = %v, want 2", data["value"])
	}
}

func TestHandleUpdateMissingKey(t *testing.T) {
	server := newTestServer(t)

	w := httptest.NewRecorder()
	req := requestWithKey(http.MethodPatch, "/kv/5", "5", `{"value": 2}`)
	server.handleUpdate(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleDelete(t *testing.T) {
	server := newTestServer(t)

	req := requestWithKey(http.MethodPut, "/kv/3", "3", `{"value": 9}`)
	server.handleInsert(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	req = requestWithKey(http.MethodDelete, "/kv/3", "3", "")
	server.handleDelete(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	req = requestWithKey(http.MethodGet, "/kv/3", "3", "")
	server.handleFind(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("find-after-delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleRangeScan(t *testing.T) {
	server := newTestServer(t)

	for _, k := range []uint64{1, 2, 3, 10} {
		if _, err := server.tree.Insert(k, k*10); err != nil {
			t.Fatalf("Insert error = %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/scan?start=1&n=3", nil)
	server.handleRangeScan(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("scan status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	data := decodeResponse(t, w.Body.Bytes()).Data.(map[string]interface{})
	pairs := data["pairs"].([]interface{})
	if len(pairs) != 3 {
		t.Errorf("len(pairs) = %d, want 3", len(pairs))
	}
	first := pairs[0].(map[string]interface{})
	if first["key"].(float64) != 1 {
		t.Errorf("pairs[0].key = %v, want 1", first["key"])
	}
}

func TestHandleRangeScanRequiresBounds(t *testing.T) {
	server := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/scan", nil)
	server.handleRangeScan(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleStats(t *testing.T) {
	server := newTestServer(t)
	if _, err := server.tree.Insert(1, 1); err != nil {
		t.Fatalf("Insert error = %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	server.handleStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want %d", w.Code, http.StatusOK)
	}
	data := decodeResponse(t, w.Body.Bytes()).Data.(map[string]interface{})
	if data["kvs"].(float64) != 1 {
		t.Errorf("kvs = %v, want 1", data["kvs"])
	}
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	server.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

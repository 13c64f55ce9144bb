package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/example/comment-tree/internal/platform/httpserver"
	"github.com/example/comment-tree/services/comments/internal/store"
	"github.com/example/comment-tree/services/comments/internal/thread"
)

type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
	Meta      json.RawMessage `json:"meta"`
}

func newTestRouter(svc *thread.Service) chi.Router {
	r := chi.NewRouter()
	r.Use(httpserver.RequestIDMiddleware(httpserver.RequestIDHeader))
	r.Mount("/api/v1/comments", Routes(svc, nil))
	return r
}

func do(t *testing.T, h http.Handler, method, url, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, url, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s: %v (%s)", method, url, err, rr.Body.String())
	}
	return rr, env
}

func createVia(t *testing.T, h http.Handler, text, parentID string) store.Comment {
	t.Helper()
	url := "/api/v1/comments"
	if parentID != "" {
		url += "?parentId=" + parentID
	}
	rr, env := do(t, h, http.MethodPost, url, `{"text":"`+text+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var c store.Comment
	if err := json.Unmarshal(env.Data, &c); err != nil {
		t.Fatalf("decode comment: %v", err)
	}
	return c
}

func TestCreateAndGetComment(t *testing.T) {
	h := newTestRouter(thread.NewService(store.NewInMemoryCommentStore(), nil, nil))

	root := createVia(t, h, "hello", "")
	if root.Text != "hello" || root.ParentID != nil {
		t.Fatalf("unexpected root %+v", root)
	}
	reply := createVia(t, h, "reply", root.ID)
	if reply.ParentID == nil || *reply.ParentID != root.ID {
		t.Fatalf("expected parent %s, got %v", root.ID, reply.ParentID)
	}

	rr, env := do(t, h, http.MethodGet, "/api/v1/comments/"+root.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if env.Status != "success" || env.Message != "Comment fetched successfully" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	var got map[string]any
	_ = json.Unmarshal(env.Data, &got)
	if got["totalSubComments"] != float64(1) {
		t.Fatalf("expected totalSubComments 1, got %v", got["totalSubComments"])
	}
	if _, ok := got["isDeleted"]; ok {
		t.Fatal("isDeleted must not be exposed")
	}
	if v, ok := got["parentId"]; !ok || v != nil {
		t.Fatalf("expected explicit null parentId, got %v", v)
	}
}

func TestCreateComment_Failures(t *testing.T) {
	h := newTestRouter(thread.NewService(store.NewInMemoryCommentStore(), nil, nil))

	cases := []struct {
		name, url, body string
		code            int
		message         string
	}{
		{"bad parent id", "/api/v1/comments?parentId=nope", `{"text":"x"}`, http.StatusBadRequest, "Invalid parent ID"},
		{"missing parent", "/api/v1/comments?parentId=0190b6a0-0000-7000-8000-000000000000", `{"text":"x"}`, http.StatusNotFound, "Parent comment not found"},
		{"empty text", "/api/v1/comments", `{"text":"   "}`, http.StatusBadRequest, "Text must not be empty"},
		{"bad json", "/api/v1/comments", `{"text":`, http.StatusBadRequest, "Invalid JSON body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, env := do(t, h, http.MethodPost, tc.url, tc.body)
			if rr.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rr.Code)
			}
			if env.Status != "failure" || env.Message != tc.message {
				t.Fatalf("unexpected envelope %+v", env)
			}
			if env.RequestID == "" || env.RequestID != rr.Header().Get(httpserver.RequestIDHeader) {
				t.Fatalf("expected request id echoed, got %q", env.RequestID)
			}
		})
	}
}

func TestGetComment_BadAndMissingID(t *testing.T) {
	h := newTestRouter(thread.NewService(store.NewInMemoryCommentStore(), nil, nil))

	rr, env := do(t, h, http.MethodGet, "/api/v1/comments/not-a-uuid", "")
	if rr.Code != http.StatusBadRequest || env.Message != "Invalid comment ID" {
		t.Fatalf("expected 400 Invalid comment ID, got %d %q", rr.Code, env.Message)
	}
	rr, env = do(t, h, http.MethodGet, "/api/v1/comments/0190b6a0-0000-7000-8000-000000000000", "")
	if rr.Code != http.StatusNotFound || env.Message != "Comment not found" {
		t.Fatalf("expected 404, got %d %q", rr.Code, env.Message)
	}
}

func TestUpdateComment(t *testing.T) {
	h := newTestRouter(thread.NewService(store.NewInMemoryCommentStore(), nil, nil))
	c := createVia(t, h, "before", "")

	rr, env := do(t, h, http.MethodPut, "/api/v1/comments/"+c.ID, `{"text":"after"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var u store.Comment
	_ = json.Unmarshal(env.Data, &u)
	if u.Text != "after" {
		t.Fatalf("expected 'after', got %q", u.Text)
	}

	rr, _ = do(t, h, http.MethodPut, "/api/v1/comments/0190b6a0-0000-7000-8000-000000000000", `{"text":"x"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDeleteComment(t *testing.T) {
	h := newTestRouter(thread.NewService(store.NewInMemoryCommentStore(), nil, nil))
	root := createVia(t, h, "root", "")
	child := createVia(t, h, "child", root.ID)
	_ = createVia(t, h, "grandchild", child.ID)

	rr, env := do(t, h, http.MethodDelete, "/api/v1/comments/"+child.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var res struct {
		ID           string `json:"id"`
		Text         string `json:"text"`
		DeletedCount int    `json:"deletedCount"`
	}
	_ = json.Unmarshal(env.Data, &res)
	if res.ID != child.ID || res.Text != "child" || res.DeletedCount != 2 {
		t.Fatalf("unexpected delete result %+v", res)
	}

	rr, _ = do(t, h, http.MethodDelete, "/api/v1/comments/"+child.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on repeat delete, got %d", rr.Code)
	}

	_, env = do(t, h, http.MethodGet, "/api/v1/comments/"+root.ID, "")
	var got store.Comment
	_ = json.Unmarshal(env.Data, &got)
	if got.TotalSubComments != 0 {
		t.Fatalf("expected root counter 0, got %d", got.TotalSubComments)
	}
}

func TestListComments_OffsetMeta(t *testing.T) {
	h := newTestRouter(thread.NewService(store.NewInMemoryCommentStore(), nil, nil))
	for _, text := range []string{"a", "b", "c"} {
		_ = createVia(t, h, text, "")
	}

	rr, env := do(t, h, http.MethodGet, "/api/v1/comments?page=2&limit=2&sort=text_asc", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var items []store.Comment
	_ = json.Unmarshal(env.Data, &items)
	if len(items) != 1 || items[0].Text != "c" {
		t.Fatalf("expected [c], got %+v", items)
	}
	var meta pageMeta
	_ = json.Unmarshal(env.Meta, &meta)
	if meta != (pageMeta{Page: 2, Limit: 2, Total: 3}) {
		t.Fatalf("unexpected meta %+v", meta)
	}

	_, env = do(t, h, http.MethodGet, "/api/v1/comments?page=7", "")
	if string(env.Data) != "[]" {
		t.Fatalf("expected empty array past the end, got %s", env.Data)
	}

	rr, _ = do(t, h, http.MethodGet, "/api/v1/comments?page=abc", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad page, got %d", rr.Code)
	}
}

func TestListComments_CursorMeta(t *testing.T) {
	h := newTestRouter(thread.NewService(store.NewInMemoryCommentStore(), nil, nil))
	var ids []string
	for _, text := range []string{"C1", "C2", "C3"} {
		ids = append(ids, createVia(t, h, text, "").ID)
	}

	_, env := do(t, h, http.MethodGet, "/api/v1/comments/cursor?limit=2", "")
	var meta cursorMeta
	_ = json.Unmarshal(env.Meta, &meta)
	if !meta.HasMore || meta.NextCursor == nil || *meta.NextCursor != ids[1] || meta.Limit != 2 {
		t.Fatalf("unexpected meta %+v", meta)
	}

	_, env = do(t, h, http.MethodGet, "/api/v1/comments/cursor?limit=2&cursor="+*meta.NextCursor, "")
	var raw map[string]any
	_ = json.Unmarshal(env.Meta, &raw)
	if v, ok := raw["nextCursor"]; !ok || v != nil {
		t.Fatalf("expected explicit null nextCursor, got %v", v)
	}
	if raw["hasMore"] != false {
		t.Fatalf("expected hasMore false, got %v", raw["hasMore"])
	}

	rr, _ := do(t, h, http.MethodGet, "/api/v1/comments/cursor?cursor=0190b6a0-0000-7000-8000-000000000000", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown cursor, got %d", rr.Code)
	}
	rr, _ = do(t, h, http.MethodGet, "/api/v1/comments/cursor?cursor=garbage", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed cursor, got %d", rr.Code)
	}
}

func TestListComments_RejectsOutOfRangeParams(t *testing.T) {
	h := newTestRouter(thread.NewService(store.NewInMemoryCommentStore(), nil, nil))

	cases := []struct {
		name, url, message string
	}{
		{"zero limit", "/api/v1/comments?limit=0", "Invalid limit"},
		{"limit over max", "/api/v1/comments?limit=51", "Invalid limit"},
		{"negative page", "/api/v1/comments?page=-5", "Invalid page"},
		{"zero page", "/api/v1/comments?page=0", "Invalid page"},
		{"cursor zero limit", "/api/v1/comments/cursor?limit=0", "Invalid limit"},
		{"cursor limit over max", "/api/v1/comments/cursor?limit=500", "Invalid limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, env := do(t, h, http.MethodGet, tc.url, "")
			if rr.Code != http.StatusBadRequest || env.Message != tc.message {
				t.Fatalf("expected 400 %q, got %d %q", tc.message, rr.Code, env.Message)
			}
		})
	}

	rr, env := do(t, h, http.MethodGet, "/api/v1/comments?page=1&limit=50", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 at the bounds, got %d %q", rr.Code, env.Message)
	}
}

func TestComments_NonCanonicalIDs(t *testing.T) {
	h := newTestRouter(thread.NewService(store.NewInMemoryCommentStore(), nil, nil))
	root := createVia(t, h, "root", "")
	upper := strings.ToUpper(root.ID)

	rr, env := do(t, h, http.MethodGet, "/api/v1/comments/"+upper, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for upper-case id, got %d %q", rr.Code, env.Message)
	}
	var got store.Comment
	_ = json.Unmarshal(env.Data, &got)
	if got.ID != root.ID {
		t.Fatalf("expected canonical id %s, got %s", root.ID, got.ID)
	}

	rr, env = do(t, h, http.MethodGet, "/api/v1/comments/urn:uuid:"+root.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for urn id, got %d %q", rr.Code, env.Message)
	}

	reply := createVia(t, h, "reply", "%7B"+upper+"%7D")
	if reply.ParentID == nil || *reply.ParentID != root.ID {
		t.Fatalf("expected canonical parent %s, got %v", root.ID, reply.ParentID)
	}

	_, env = do(t, h, http.MethodGet, "/api/v1/comments/cursor?cursor="+strings.ReplaceAll(upper, "-", ""), "")
	if env.Status != "success" {
		t.Fatalf("expected unhyphenated cursor accepted, got %q", env.Message)
	}

	_, env = do(t, h, http.MethodGet, "/api/v1/comments/"+root.ID, "")
	_ = json.Unmarshal(env.Data, &got)
	if got.TotalSubComments != 1 {
		t.Fatalf("expected reply counted under the canonical parent, got %d", got.TotalSubComments)
	}
}

// brokenStore fails every read with an I/O error.
type brokenStore struct {
	*store.InMemoryCommentStore
}

var errIO = errors.New("connection reset")

func (brokenStore) GetByID(context.Context, string) (store.Comment, error) {
	return store.Comment{}, errIO
}

func TestGetComment_StoreFailure(t *testing.T) {
	svc := thread.NewService(brokenStore{store.NewInMemoryCommentStore()}, nil, nil)
	h := newTestRouter(svc)

	rr, env := do(t, h, http.MethodGet, "/api/v1/comments/0190b6a0-0000-7000-8000-000000000000", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if env.Message != "Internal Server Error" {
		t.Fatalf("expected generic message, got %q", env.Message)
	}
}

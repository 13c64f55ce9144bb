package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/comment-tree/internal/platform/api"
	"github.com/example/comment-tree/internal/platform/httpserver"
	"github.com/example/comment-tree/services/comments/internal/store"
	"github.com/example/comment-tree/services/comments/internal/thread"
)

const maxBodyBytes = 1 << 20

type textRequest struct {
	Text string `json:"text"`
}

type pageMeta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

type cursorMeta struct {
	NextCursor *string    `json:"nextCursor"`
	HasMore    bool       `json:"hasMore"`
	Limit      int        `json:"limit"`
	Sort       store.Sort `json:"sort,omitempty"`
}

type deleteResponse struct {
	store.Comment
	DeletedCount int `json:"deletedCount"`
}

// Routes mounts the comment endpoints.
func Routes(svc *thread.Service, log *zap.Logger) chi.Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Get("/", ListComments(svc, log))
	r.Get("/cursor", ListCommentsCursor(svc, log))
	r.Post("/", CreateComment(svc, log))
	r.Get("/{id}", GetComment(svc, log))
	r.Put("/{id}", UpdateComment(svc, log))
	r.Delete("/{id}", DeleteComment(svc, log))
	return r
}

// GetComment handles GET /api/v1/comments/{id}
func GetComment(svc *thread.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		id, ok := commentID(r)
		if !ok {
			api.BadRequest(w, "Invalid comment ID", rid)
			return
		}

		c, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err, "Comment not found")
			return
		}
		api.Success(w, http.StatusOK, "Comment fetched successfully", c, nil)
	}
}

// ListComments handles GET /api/v1/comments?parentId=&page=&limit=&sort=
func ListComments(svc *thread.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		q := r.URL.Query()

		parentID, ok := optionalID(q.Get("parentId"))
		if !ok {
			api.BadRequest(w, "Invalid parent ID", rid)
			return
		}
		page, ok := intParam(q.Get("page"), 1, 1, math.MaxInt)
		if !ok {
			api.BadRequest(w, "Invalid page", rid)
			return
		}
		limit, ok := intParam(q.Get("limit"), thread.DefaultLimit, 1, thread.MaxLimit)
		if !ok {
			api.BadRequest(w, "Invalid limit", rid)
			return
		}

		res, err := svc.ListPage(r.Context(), thread.PageQuery{
			ParentID: parentID,
			Page:     page,
			Limit:    limit,
			Sort:     sortParam(q.Get("sort")),
		})
		if err != nil {
			writeServiceError(w, r, log, err, "")
			return
		}
		api.Success(w, http.StatusOK, "Comments fetched successfully", res.Items,
			pageMeta{Page: res.Page, Limit: res.Limit, Total: res.Total})
	}
}

// ListCommentsCursor handles GET /api/v1/comments/cursor?parentId=&cursor=&limit=&sort=
func ListCommentsCursor(svc *thread.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		q := r.URL.Query()

		parentID, ok := optionalID(q.Get("parentId"))
		if !ok {
			api.BadRequest(w, "Invalid parent ID", rid)
			return
		}
		cursor, ok := optionalID(q.Get("cursor"))
		if !ok {
			api.BadRequest(w, "Invalid cursor", rid)
			return
		}
		limit, ok := intParam(q.Get("limit"), thread.DefaultLimit, 1, thread.MaxLimit)
		if !ok {
			api.BadRequest(w, "Invalid limit", rid)
			return
		}

		res, err := svc.ListCursor(r.Context(), thread.CursorQuery{
			ParentID: parentID,
			Cursor:   deref(cursor),
			Limit:    limit,
			Sort:     sortParam(q.Get("sort")),
		})
		if err != nil {
			writeServiceError(w, r, log, err, "")
			return
		}
		api.Success(w, http.StatusOK, "Comments fetched successfully", res.Items, cursorMeta{
			NextCursor: res.NextCursor,
			HasMore:    res.HasMore,
			Limit:      res.Limit,
			Sort:       res.Sort,
		})
	}
}

// CreateComment handles POST /api/v1/comments?parentId=
func CreateComment(svc *thread.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		parentID, ok := optionalID(r.URL.Query().Get("parentId"))
		if !ok {
			api.BadRequest(w, "Invalid parent ID", rid)
			return
		}
		req, ok := decodeText(w, r)
		if !ok {
			api.BadRequest(w, "Invalid JSON body", rid)
			return
		}

		c, err := svc.Create(r.Context(), req.Text, parentID)
		if err != nil {
			writeServiceError(w, r, log, err, "")
			return
		}
		api.Success(w, http.StatusCreated, "Comments created successfully", c, nil)
	}
}

// UpdateComment handles PUT /api/v1/comments/{id}
func UpdateComment(svc *thread.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		id, ok := commentID(r)
		if !ok {
			api.BadRequest(w, "Invalid comment ID", rid)
			return
		}
		req, ok := decodeText(w, r)
		if !ok {
			api.BadRequest(w, "Invalid JSON body", rid)
			return
		}

		c, err := svc.Update(r.Context(), id, req.Text)
		if err != nil {
			writeServiceError(w, r, log, err, "Comment not found")
			return
		}
		api.Success(w, http.StatusOK, "Comments updated successfully", c, nil)
	}
}

// DeleteComment handles DELETE /api/v1/comments/{id}
func DeleteComment(svc *thread.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		id, ok := commentID(r)
		if !ok {
			api.BadRequest(w, "Invalid comment ID", rid)
			return
		}

		res, err := svc.Delete(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, log, err, "Comment not found")
			return
		}
		api.Success(w, http.StatusOK, "Comments deleted successfully",
			deleteResponse{Comment: res.Root, DeletedCount: res.DeletedCount}, nil)
	}
}

// writeServiceError maps thread and store errors onto the failure envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error, notFoundMsg string) {
	rid := httpserver.RequestIDFromContext(r.Context())
	if notFoundMsg == "" {
		notFoundMsg = "Comment not found"
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		api.NotFound(w, notFoundMsg, rid)
	case errors.Is(err, thread.ErrParentNotFound):
		api.NotFound(w, "Parent comment not found", rid)
	case errors.Is(err, thread.ErrEmptyText):
		api.BadRequest(w, "Text must not be empty", rid)
	case errors.Is(err, store.ErrInvalidCursor):
		api.BadRequest(w, "Invalid cursor", rid)
	default:
		log.Error("comments request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", rid),
			zap.Error(err))
		api.Internal(w, rid)
	}
}

func commentID(r *http.Request) (string, bool) {
	return canonicalID(chi.URLParam(r, "id"))
}

// optionalID treats an empty value as absent.
func optionalID(raw string) (*string, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	id, ok := canonicalID(raw)
	if !ok {
		return nil, false
	}
	return &id, true
}

// canonicalID accepts any form uuid.Parse does and returns the lower-case
// hyphenated one the stores key on.
func canonicalID(raw string) (string, bool) {
	u, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return u.String(), true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// intParam parses an optional integer query value within [lo, hi].
func intParam(raw string, fallback, lo, hi int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

// sortParam keeps recognised selectors; anything else lists in default order.
func sortParam(raw string) store.Sort {
	s, ok := store.ParseSort(raw)
	if !ok {
		return ""
	}
	return s
}

func decodeText(w http.ResponseWriter, r *http.Request) (textRequest, bool) {
	var req textRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return textRequest{}, false
	}
	return req, true
}

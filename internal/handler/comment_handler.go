package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/ambaria/internal/model"
)

// maxJSONBodyBytes はJSONリクエストボディの上限。
const maxJSONBodyBytes = 64 << 10

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	Add(ctx context.Context, podcastID, authorID, text string) (*model.CommentWithAuthor, error)
	List(ctx context.Context, podcastID string) ([]*model.CommentWithAuthor, error)
	Get(ctx context.Context, id string) (*model.CommentWithAuthor, error)
	Delete(ctx context.Context, id, callerID string) error
}

// CommentHandler はコメントのHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface) *CommentHandler {
	return &CommentHandler{service: service}
}

type addCommentRequest struct {
	Text string `json:"text"`
}

// commentResponse はコメントのAPIレスポンス。
type commentResponse struct {
	ID            string    `json:"id"`
	PodcastID     string    `json:"podcast_id"`
	UserID        string    `json:"user_id"`
	Text          string    `json:"text"`
	AuthorName    string    `json:"author_name"`
	AuthorPicture string    `json:"author_picture,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Add はポッドキャストにコメントを追加する。
// POST /api/podcasts/{id}/comments
func (h *CommentHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req addCommentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("request body must be JSON with a text field"))
		return
	}

	c, err := h.service.Add(r.Context(), chi.URLParam(r, "id"), userID, req.Text)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentResponse(c))
}

// List はポッドキャストのコメント一覧を返す。
// GET /api/podcasts/{id}/comments
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		resp = append(resp, toCommentResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get はコメントを返す。
// GET /api/comments/{id}
func (h *CommentHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommentResponse(c))
}

// Delete は投稿者本人のコメントを削除する。
// DELETE /api/comments/{id}
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toCommentResponse(c *model.CommentWithAuthor) commentResponse {
	return commentResponse{
		ID:            c.ID,
		PodcastID:     c.PodcastID,
		UserID:        c.UserID,
		Text:          c.Text,
		AuthorName:    c.AuthorName,
		AuthorPicture: c.AuthorPicture,
		CreatedAt:     c.CreatedAt,
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/ambaria/internal/media"
	"github.com/hitoshi/ambaria/internal/model"
	"github.com/hitoshi/ambaria/internal/podcast"
)

const (
	audioFormField = "audio_file"
	coverFormField = "cover_image"

	// multipartMemory はParseMultipartFormがメモリに保持する上限。超えた分は一時ファイルになる。
	multipartMemory = 32 << 20
)

// PodcastServiceInterface はポッドキャストハンドラーが必要とするサービスインターフェース。
type PodcastServiceInterface interface {
	Create(ctx context.Context, ownerID string, in podcast.CreateInput) (*model.Podcast, error)
	List(ctx context.Context, category string) ([]*model.PodcastWithOwner, error)
	ListOwnedBy(ctx context.Context, ownerID string) ([]*model.PodcastWithOwner, error)
	ListCategories(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (*model.PodcastWithOwner, error)
	Update(ctx context.Context, id, callerID string, in podcast.UpdateInput) (*model.PodcastWithOwner, error)
	Delete(ctx context.Context, id, callerID string) error
	MediaURL(locator string) string
}

// PodcastHandler はポッドキャスト管理のHTTPハンドラー。
type PodcastHandler struct {
	service        PodcastServiceInterface
	maxUploadBytes int64
}

// NewPodcastHandler はPodcastHandlerを生成する。
func NewPodcastHandler(service PodcastServiceInterface, maxUploadBytes int64) *PodcastHandler {
	return &PodcastHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
	}
}

// podcastResponse はポッドキャスト情報のAPIレスポンス。
type podcastResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Artist      string    `json:"artist"`
	AudioURL    string    `json:"audio_url"`
	CoverURL    string    `json:"cover_url,omitempty"`
	DurationSec int       `json:"duration_sec"`
	OwnerID     string    `json:"owner_id"`
	OwnerName   string    `json:"owner_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// updatePodcastRequest はJSONによる部分更新リクエストのボディ。
type updatePodcastRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Artist      *string `json:"artist"`
}

// List はポッドキャスト一覧を返す。
// GET /api/podcasts?category=
func (h *PodcastHandler) List(w http.ResponseWriter, r *http.Request) {
	podcasts, err := h.service.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPodcastResponses(podcasts))
}

// ListMine は認証ユーザーが所有するポッドキャスト一覧を返す。
// GET /api/podcasts/mine
func (h *PodcastHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	podcasts, err := h.service.ListOwnedBy(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPodcastResponses(podcasts))
}

// ListCategories はカテゴリ一覧を返す。
// GET /api/categories
func (h *PodcastHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, categories)
}

// Get はポッドキャスト詳細を返す。
// GET /api/podcasts/{id}
func (h *PodcastHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPodcastResponse(p))
}

// Create はmultipartフォームからポッドキャストを作成する。
// POST /api/podcasts
func (h *PodcastHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	form, err := h.parseMultipart(w, r)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer form.RemoveAll()

	audio, closeAudio, err := openUpload(form, audioFormField)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer closeAudio()
	cover, closeCover, err := openUpload(form, coverFormField)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer closeCover()

	created, err := h.service.Create(r.Context(), userID, podcast.CreateInput{
		Title:       formValue(form, "title"),
		Description: formValue(form, "description"),
		Category:    formValue(form, "category"),
		Artist:      formValue(form, "artist"),
		Audio:       audio,
		Cover:       cover,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toPodcastResponse(&model.PodcastWithOwner{Podcast: *created}))
}

// Update はポッドキャストを部分更新する。
// multipartフォームではメディアの差し替えもできる。JSONボディではテキスト項目のみ更新する。
// PATCH/PUT /api/podcasts/{id}
func (h *PodcastHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var in podcast.UpdateInput
	if isMultipart(r) {
		form, err := h.parseMultipart(w, r)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		defer form.RemoveAll()

		in.Title = optionalFormValue(form, "title")
		in.Description = optionalFormValue(form, "description")
		in.Category = optionalFormValue(form, "category")
		in.Artist = optionalFormValue(form, "artist")

		audio, closeAudio, err := openUpload(form, audioFormField)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		defer closeAudio()
		cover, closeCover, err := openUpload(form, coverFormField)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		defer closeCover()
		in.Audio, in.Cover = audio, cover
	} else {
		var req updatePodcastRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(&req); err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("request body must be JSON or multipart form"))
			return
		}
		in.Title, in.Description, in.Category, in.Artist = req.Title, req.Description, req.Category, req.Artist
	}

	updated, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), userID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toPodcastResponse(updated))
}

// Delete はポッドキャストとそのコメントを削除する。
// DELETE /api/podcasts/{id}
func (h *PodcastHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

// parseMultipart はボディサイズを制限してmultipartフォームを解析する。
func (h *PodcastHandler) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	if !isMultipart(r) {
		return nil, model.NewValidationError("request must be multipart/form-data")
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, model.NewValidationError("upload exceeds the maximum allowed size")
		}
		return nil, model.NewValidationError("malformed multipart form")
	}
	return r.MultipartForm, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// openUpload はフォームのファイル項目を開く。項目がない場合はnilを返す。
func openUpload(form *multipart.Form, field string) (*media.Upload, func(), error) {
	files := form.File[field]
	if len(files) == 0 {
		return nil, func() {}, nil
	}
	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, model.NewValidationError("uploaded file could not be read")
	}
	return &media.Upload{Filename: fh.Filename, Body: f, Size: fh.Size}, func() { f.Close() }, nil
}

func formValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// optionalFormValue は項目が送信された場合のみ値へのポインタを返す。
func optionalFormValue(form *multipart.Form, key string) *string {
	vs, ok := form.Value[key]
	if !ok || len(vs) == 0 {
		return nil
	}
	v := vs[0]
	return &v
}

func (h *PodcastHandler) toPodcastResponse(p *model.PodcastWithOwner) podcastResponse {
	return podcastResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		Artist:      p.Artist,
		AudioURL:    h.service.MediaURL(p.AudioLocator),
		CoverURL:    h.service.MediaURL(p.CoverLocator),
		DurationSec: p.DurationSec,
		OwnerID:     p.UserID,
		OwnerName:   p.OwnerName,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (h *PodcastHandler) toPodcastResponses(podcasts []*model.PodcastWithOwner) []podcastResponse {
	resp := make([]podcastResponse, 0, len(podcasts))
	for _, p := range podcasts {
		resp = append(resp, h.toPodcastResponse(p))
	}
	return resp
}

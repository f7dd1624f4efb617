package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/coursebook/internal/course"
	"github.com/hitoshi/coursebook/internal/model"
	"github.com/hitoshi/coursebook/internal/storage"
)

// multipartMemory はmultipartフォームをメモリに保持する上限。超過分は一時ファイルに置かれる。
const multipartMemory = 8 << 20

// CourseServiceInterface は講座ハンドラーが必要とするサービスインターフェース。
type CourseServiceInterface interface {
	ListAll(ctx context.Context) ([]*model.Course, error)
	Create(ctx context.Context, ownerID int64, in course.CreateInput, image *storage.Upload) (*model.Course, error)
	Get(ctx context.Context, id int64) (*model.Course, error)
	Delete(ctx context.Context, courseID, requesterID int64) error
}

// CourseHandler は講座の一覧・出品・閲覧・削除のHTTPハンドラー。
type CourseHandler struct {
	service CourseServiceInterface
}

// NewCourseHandler はCourseHandlerを生成する。
func NewCourseHandler(service CourseServiceInterface) *CourseHandler {
	return &CourseHandler{service: service}
}

// Dashboard は全講座の一覧を返す。
// GET /dashboard
func (h *CourseHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	courses, err := h.service.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"courses": toCourseResponses(courses)})
}

// CreateCourse は講座を出品する。
// POST /create_course (title, description, price_per_hour, category_tags, image)
func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("フォームを解析できません"))
		return
	}

	in := course.CreateInput{
		Title:        r.FormValue("title"),
		Description:  r.FormValue("description"),
		PricePerHour: r.FormValue("price_per_hour"),
		CategoryTags: r.FormValue("category_tags"),
	}

	var upload *storage.Upload
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		upload = &storage.Upload{Filename: header.Filename, Size: header.Size, Body: file}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// 画像なしは既定画像になる
	default:
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("画像を読み取れません"))
		return
	}

	c, err := h.service.Create(r.Context(), userID, in, upload)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCourseResponse(c))
}

// GetCourse は講座の詳細を返す。ログイン不要。
// GET /course/{id}
func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCourseResponse(c))
}

// DeleteCourse は講座を削除する。出品者本人のみ削除できる。
// POST /delete_course/{id}
func (h *CourseHandler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

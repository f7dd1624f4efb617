package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/coursebook/internal/model"
)

// BookingServiceInterface は予約ハンドラーが必要とするサービスインターフェース。
type BookingServiceInterface interface {
	Book(ctx context.Context, courseID, requesterID int64) (*model.Booking, error)
	Cancel(ctx context.Context, bookingID, requesterID int64) error
	ListFor(ctx context.Context, requesterID int64) ([]model.BookingWithCourse, error)
}

// BookingHandler は予約・取消のHTTPハンドラー。
type BookingHandler struct {
	service BookingServiceInterface
}

// NewBookingHandler はBookingHandlerを生成する。
func NewBookingHandler(service BookingServiceInterface) *BookingHandler {
	return &BookingHandler{service: service}
}

// BookCourse は講座を予約する。
// POST /book_course/{id}
func (h *BookingHandler) BookCourse(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	courseID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	b, err := h.service.Book(r.Context(), courseID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

// CancelBooking は予約を取り消す。予約した本人のみ取り消せる。
// POST /cancel_booking/{id}
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), bookingID, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/coursebook/internal/model"
)

// ProfileUserFinder はマイページに表示するユーザーを取得する。
type ProfileUserFinder interface {
	UserByID(ctx context.Context, userID int64) (*model.User, error)
}

// OwnedCourseLister は出品した講座の一覧を取得する。
type OwnedCourseLister interface {
	ListOwned(ctx context.Context, ownerID int64) ([]*model.Course, error)
}

// ProfileHandler はマイページのHTTPハンドラー。
type ProfileHandler struct {
	users    ProfileUserFinder
	courses  OwnedCourseLister
	bookings BookingServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(users ProfileUserFinder, courses OwnedCourseLister, bookings BookingServiceInterface) *ProfileHandler {
	return &ProfileHandler{users: users, courses: courses, bookings: bookings}
}

// MyProfile はログインユーザーの情報、出品した講座、予約した講座を返す。
// GET /my_profile
func (h *ProfileHandler) MyProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.users.UserByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	owned, err := h.courses.ListOwned(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	bookings, err := h.bookings.ListFor(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":     toUserResponse(user),
		"courses":  toCourseResponses(owned),
		"bookings": toBookingWithCourseResponses(bookings),
	})
}

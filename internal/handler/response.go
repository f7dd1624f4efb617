package handler

import (
	"time"

	"github.com/hitoshi/coursebook/internal/model"
)

// imagePathPrefix は講座画像の配信パス。
const imagePathPrefix = "/images/"

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// courseResponse は講座情報のAPIレスポンス。
type courseResponse struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	PricePerHour string    `json:"price_per_hour"`
	ImageURL     string    `json:"image_url"`
	CategoryTags string    `json:"category_tags"`
	Rating       *float64  `json:"rating"`
	CreatedAt    time.Time `json:"created_at"`
}

// bookingResponse は予約情報のAPIレスポンス。
type bookingResponse struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	CourseID  int64           `json:"course_id"`
	CreatedAt time.Time       `json:"created_at"`
	Course    *courseResponse `json:"course,omitempty"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}
}

func toCourseResponse(c *model.Course) courseResponse {
	return courseResponse{
		ID:           c.ID,
		UserID:       c.UserID,
		Title:        c.Title,
		Description:  c.Description,
		PricePerHour: c.PricePerHour.StringFixed(2),
		ImageURL:     imagePathPrefix + c.ImageURL,
		CategoryTags: c.CategoryTags,
		Rating:       c.Rating,
		CreatedAt:    c.CreatedAt,
	}
}

// toCourseResponses は一覧を変換する。空の場合もnullではなく空配列を返す。
func toCourseResponses(courses []*model.Course) []courseResponse {
	out := make([]courseResponse, 0, len(courses))
	for _, c := range courses {
		out = append(out, toCourseResponse(c))
	}
	return out
}

func toBookingResponse(b *model.Booking) bookingResponse {
	return bookingResponse{ID: b.ID, UserID: b.UserID, CourseID: b.CourseID, CreatedAt: b.CreatedAt}
}

func toBookingWithCourseResponses(list []model.BookingWithCourse) []bookingResponse {
	out := make([]bookingResponse, 0, len(list))
	for i := range list {
		resp := toBookingResponse(&list[i].Booking)
		course := toCourseResponse(&list[i].Course)
		resp.Course = &course
		out = append(out, resp)
	}
	return out
}

package model

import "time"

// Booking は受講者が講座に対して行った予約を表す。
// 状態は「存在する（有効）」と「存在しない」の2つのみで、取消は行の削除で表現する。
type Booking struct {
	ID        int64
	UserID    int64
	CourseID  int64
	CreatedAt time.Time
}

// IsOwnedBy は指定ユーザーが予約の作成者かどうかを判定する。
// 講座の所有者であっても予約の作成者でなければfalseを返す。
func (b *Booking) IsOwnedBy(userID int64) bool {
	return b != nil && userID != 0 && b.UserID == userID
}

// BookingWithCourse は予約と予約先の講座を結合したモデル。
// bookingsとcoursesをINNER JOINして取得される。
type BookingWithCourse struct {
	Booking
	Course Course
}

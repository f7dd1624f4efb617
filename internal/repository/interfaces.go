// Package repository はデータ永続化のインターフェースと実装を定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/coursebook/internal/model"
)

var (
	// ErrDuplicate は一意制約違反（PostgreSQL 23505）を表す。
	ErrDuplicate = errors.New("repository: duplicate record")
	// ErrNotFound は書き込み対象の親レコードが存在しないことを表す。
	// 単純な取得系はエラーではなく nil, nil を返す。
	ErrNotFound = errors.New("repository: record not found")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByUsername はユーザー名の完全一致でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDとcreated_atをuserに設定する。
	// ユーザー名が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しなくてもエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// CourseRepository は講座データの永続化インターフェース。
type CourseRepository interface {
	// ListAll は全講座をID昇順で返す。
	ListAll(ctx context.Context) ([]*model.Course, error)

	// FindByID は指定IDの講座を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Course, error)

	// Create は講座を作成し、採番されたIDとcreated_atをcourseに設定する。
	Create(ctx context.Context, course *model.Course) error

	// ListByUserID は指定ユーザーが出品した講座をID昇順で返す。
	ListByUserID(ctx context.Context, userID int64) ([]*model.Course, error)

	// Delete は講座を削除する。予約はON DELETE CASCADEで同時に削除される。
	// 削除した場合にtrueを返す。
	Delete(ctx context.Context, id int64) (bool, error)

	// DeleteIfUnbooked は予約が1件もない場合に限り講座を削除する。
	// 削除した場合にtrueを返す。
	DeleteIfUnbooked(ctx context.Context, id int64) (bool, error)
}

// CreateBookingOptions は予約作成時の整合性チェックを指定する。
type CreateBookingOptions struct {
	// RejectDuplicate がtrueの場合、同一ユーザー・同一講座の予約が既にあればErrDuplicateを返す。
	RejectDuplicate bool
}

// BookingRepository は予約データの永続化インターフェース。
type BookingRepository interface {
	// FindByID は指定IDの予約を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Booking, error)

	// Create は予約を作成し、採番されたIDをbookingに設定する。
	// 講座が存在しない場合はErrNotFoundを返す。
	Create(ctx context.Context, booking *model.Booking, opts CreateBookingOptions) error

	// Delete は指定IDの予約を削除する。削除した場合にtrueを返す。
	Delete(ctx context.Context, id int64) (bool, error)

	// ListByUserIDWithCourse は指定ユーザーの予約を講座情報と結合してID昇順で返す。
	ListByUserIDWithCourse(ctx context.Context, userID int64) ([]model.BookingWithCourse, error)
}

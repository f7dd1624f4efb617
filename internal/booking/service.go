// Package booking は講座予約の作成・取消・一覧のドメインロジックを提供する。
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/coursebook/internal/metrics"
	"github.com/hitoshi/coursebook/internal/model"
	"github.com/hitoshi/coursebook/internal/repository"
)

// Config は予約サービスの設定。
type Config struct {
	AllowSelfBooking bool // 出品者自身による予約を許可する
	AllowDuplicate   bool // 同一ユーザーによる同一講座の複数予約を許可する
}

// DefaultConfig は自己予約・重複予約をともに許可する設定を返す。
func DefaultConfig() Config {
	return Config{AllowSelfBooking: true, AllowDuplicate: true}
}

// Service は予約管理のサービス層。
type Service struct {
	bookingRepo repository.BookingRepository
	courseRepo  repository.CourseRepository
	metrics     metrics.MetricsCollector
	config      Config
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	bookingRepo repository.BookingRepository,
	courseRepo repository.CourseRepository,
	collector metrics.MetricsCollector,
	config Config,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		bookingRepo: bookingRepo,
		courseRepo:  courseRepo,
		metrics:     collector,
		config:      config,
		now:         time.Now,
	}
}

// Book は講座を予約する。
// 予約日時は呼び出しごとに現在時刻を設定する。
func (s *Service) Book(ctx context.Context, courseID, requesterID int64) (*model.Booking, error) {
	if requesterID == 0 {
		return nil, model.NewUnauthenticatedError()
	}

	c, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("講座の取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCourseNotFoundError(courseID)
	}
	if !s.config.AllowSelfBooking && c.IsOwnedBy(requesterID) {
		return nil, model.NewSelfBookingError()
	}

	b := &model.Booking{
		UserID:    requesterID,
		CourseID:  courseID,
		CreatedAt: s.now(),
	}
	err = s.bookingRepo.Create(ctx, b, repository.CreateBookingOptions{
		RejectDuplicate: !s.config.AllowDuplicate,
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// 確認後に講座が削除された場合
		return nil, model.NewCourseNotFoundError(courseID)
	case errors.Is(err, repository.ErrDuplicate):
		return nil, model.NewDuplicateBookingError(courseID)
	case err != nil:
		return nil, fmt.Errorf("予約の作成に失敗しました: %w", err)
	}

	s.metrics.RecordBookingCreated()
	slog.Info("booking created",
		slog.Int64("booking_id", b.ID),
		slog.Int64("course_id", courseID),
		slog.Int64("user_id", requesterID),
	)
	return b, nil
}

// Cancel は予約を取り消す。予約した本人のみ取り消せる。
// 講座の出品者であっても他人の予約は取り消せない。
func (s *Service) Cancel(ctx context.Context, bookingID, requesterID int64) error {
	if requesterID == 0 {
		return model.NewUnauthenticatedError()
	}

	b, err := s.bookingRepo.FindByID(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("予約の取得に失敗しました: %w", err)
	}
	if b == nil {
		return model.NewBookingNotFoundError(bookingID)
	}
	if !b.IsOwnedBy(requesterID) {
		return model.NewForbiddenError("予約")
	}

	deleted, err := s.bookingRepo.Delete(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("予約の取消に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewBookingNotFoundError(bookingID)
	}

	s.metrics.RecordBookingCancelled()
	slog.Info("booking cancelled",
		slog.Int64("booking_id", bookingID),
		slog.Int64("user_id", requesterID),
	)
	return nil
}

// ListFor は指定ユーザーの予約を講座情報付きで返す。
func (s *Service) ListFor(ctx context.Context, requesterID int64) ([]model.BookingWithCourse, error) {
	if requesterID == 0 {
		return nil, model.NewUnauthenticatedError()
	}
	list, err := s.bookingRepo.ListByUserIDWithCourse(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("予約一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

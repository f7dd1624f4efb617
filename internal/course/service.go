// Package course は講座の出品・閲覧・削除のドメインロジックを提供する。
package course

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/coursebook/internal/metrics"
	"github.com/hitoshi/coursebook/internal/model"
	"github.com/hitoshi/coursebook/internal/repository"
	"github.com/hitoshi/coursebook/internal/security"
	"github.com/hitoshi/coursebook/internal/storage"
)

// DeletePolicy は予約が残っている講座を削除するときの扱い。
type DeletePolicy string

const (
	// DeleteCascade は講座と一緒に予約も削除する。
	DeleteCascade DeletePolicy = "cascade"
	// DeleteRestrict は予約が残っている間は削除を拒否する。
	DeleteRestrict DeletePolicy = "restrict"
)

// ParseDeletePolicy は設定値をDeletePolicyに変換する。空文字列はcascade。
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch DeletePolicy(s) {
	case "", DeleteCascade:
		return DeleteCascade, nil
	case DeleteRestrict:
		return DeleteRestrict, nil
	}
	return "", fmt.Errorf("unknown course delete policy: %q", s)
}

// maxPrice はNUMERIC(10,2)に収まる最大値。
var maxPrice = decimal.RequireFromString("99999999.99")

// Config は講座サービスの設定。
type Config struct {
	DeletePolicy DeletePolicy
	MaxImageSize int64 // 0以下は無制限
}

// CreateInput は講座作成フォームの入力値。
type CreateInput struct {
	Title        string
	Description  string
	PricePerHour string
	CategoryTags string
}

// Service は講座管理のサービス層。
type Service struct {
	courseRepo repository.CourseRepository
	images     storage.ImageStore
	sanitizer  security.TextSanitizer
	metrics    metrics.MetricsCollector
	config     Config
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	courseRepo repository.CourseRepository,
	images storage.ImageStore,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
	config Config,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if config.DeletePolicy == "" {
		config.DeletePolicy = DeleteCascade
	}
	return &Service{
		courseRepo: courseRepo,
		images:     images,
		sanitizer:  sanitizer,
		metrics:    collector,
		config:     config,
	}
}

// ListAll は全講座を登録順に返す。
func (s *Service) ListAll(ctx context.Context) ([]*model.Course, error) {
	courses, err := s.courseRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("講座一覧の取得に失敗しました: %w", err)
	}
	return courses, nil
}

// ListOwned は指定ユーザーが出品した講座を返す。
func (s *Service) ListOwned(ctx context.Context, ownerID int64) ([]*model.Course, error) {
	courses, err := s.courseRepo.ListByUserID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("出品講座の取得に失敗しました: %w", err)
	}
	return courses, nil
}

// Get は指定IDの講座を返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.Course, error) {
	c, err := s.courseRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("講座の取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCourseNotFoundError(id)
	}
	return c, nil
}

// Create は講座を作成する。
// 文字列項目はHTMLを除去してから検証する。
// 画像が無い、または許可されない場合は既定の画像を使う。
func (s *Service) Create(ctx context.Context, ownerID int64, in CreateInput, image *storage.Upload) (*model.Course, error) {
	if ownerID == 0 {
		return nil, model.NewUnauthenticatedError()
	}

	in.Title = s.sanitizer.Sanitize(in.Title)
	in.Description = s.sanitizer.Sanitize(in.Description)
	in.CategoryTags = s.sanitizer.Sanitize(in.CategoryTags)

	price, err := in.validate()
	if err != nil {
		return nil, model.NewInvalidInputError(err.Error())
	}

	c := &model.Course{
		UserID:       ownerID,
		Title:        in.Title,
		Description:  in.Description,
		PricePerHour: price,
		CategoryTags: in.CategoryTags,
		ImageURL:     s.storeImage(ctx, ownerID, image),
	}

	if err := s.courseRepo.Create(ctx, c); err != nil {
		s.removeImage(ctx, c.ImageURL)
		return nil, fmt.Errorf("講座の作成に失敗しました: %w", err)
	}

	s.metrics.RecordCourseCreated()
	slog.Info("course created",
		slog.Int64("course_id", c.ID),
		slog.Int64("user_id", ownerID),
	)
	return c, nil
}

// Delete は講座を削除する。所有者のみ削除できる。
// 予約の扱いはDeletePolicyに従う。
func (s *Service) Delete(ctx context.Context, courseID, requesterID int64) error {
	if requesterID == 0 {
		return model.NewUnauthenticatedError()
	}

	c, err := s.Get(ctx, courseID)
	if err != nil {
		return err
	}
	if !c.IsOwnedBy(requesterID) {
		return model.NewForbiddenError("講座")
	}

	var deleted bool
	switch s.config.DeletePolicy {
	case DeleteRestrict:
		deleted, err = s.courseRepo.DeleteIfUnbooked(ctx, courseID)
	default:
		deleted, err = s.courseRepo.Delete(ctx, courseID)
	}
	if err != nil {
		return fmt.Errorf("講座の削除に失敗しました: %w", err)
	}
	if !deleted {
		return s.notDeletedReason(ctx, courseID)
	}

	s.removeImage(ctx, c.ImageURL)
	s.metrics.RecordCourseDeleted()
	slog.Info("course deleted",
		slog.Int64("course_id", courseID),
		slog.Int64("user_id", requesterID),
		slog.String("policy", string(s.config.DeletePolicy)),
	)
	return nil
}

// notDeletedReason は削除件数が0だった理由を判定する。
// 講座が残っていれば予約があるため、無ければ並行して削除されたため。
func (s *Service) notDeletedReason(ctx context.Context, courseID int64) error {
	c, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		return fmt.Errorf("講座の取得に失敗しました: %w", err)
	}
	if c == nil {
		return model.NewCourseNotFoundError(courseID)
	}
	return model.NewCourseHasBookingsError(courseID)
}

// storeImage は画像を保存してキーを返す。
// 保存できない画像は既定の画像に置き換える。
func (s *Service) storeImage(ctx context.Context, ownerID int64, image *storage.Upload) string {
	if image == nil || image.Filename == "" || image.Body == nil {
		return model.DefaultImageURL
	}
	key, ok := storage.NewImageKey(image.Filename)
	if !ok {
		slog.Info("image rejected by extension",
			slog.Int64("user_id", ownerID),
			slog.String("filename", image.Filename),
		)
		return model.DefaultImageURL
	}
	if s.config.MaxImageSize > 0 && image.Size > s.config.MaxImageSize {
		slog.Info("image rejected by size",
			slog.Int64("user_id", ownerID),
			slog.Int64("size", image.Size),
		)
		return model.DefaultImageURL
	}
	if err := s.images.Save(ctx, key, image.Body, image.Size, storage.ContentTypeFor(key)); err != nil {
		slog.Warn("failed to store image",
			slog.Int64("user_id", ownerID),
			slog.String("error", err.Error()),
		)
		return model.DefaultImageURL
	}
	return key
}

// removeImage は保存済み画像をベストエフォートで削除する。
func (s *Service) removeImage(ctx context.Context, key string) {
	if key == "" || key == model.DefaultImageURL {
		return
	}
	if err := s.images.Delete(ctx, key); err != nil {
		slog.Warn("failed to delete image",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// validate は入力を検証し、時間単価を返す。
func (in CreateInput) validate() (decimal.Decimal, error) {
	var price decimal.Decimal
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Title,
			validation.Required.Error("タイトルは必須です"),
			validation.RuneLength(1, 100).Error("タイトルは100文字以内で入力してください"),
		),
		validation.Field(&in.Description,
			validation.Required.Error("説明は必須です"),
		),
		validation.Field(&in.PricePerHour,
			validation.Required.Error("時間単価は必須です"),
			validation.By(func(value interface{}) error {
				p, err := parsePrice(value.(string))
				if err != nil {
					return err
				}
				price = p
				return nil
			}),
		),
		validation.Field(&in.CategoryTags,
			validation.RuneLength(0, 255).Error("カテゴリタグは255文字以内で入力してください"),
		),
	)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return price, nil
}

var (
	errPriceFormat   = errors.New("時間単価は数値で入力してください")
	errPriceNegative = errors.New("時間単価は0以上で入力してください")
	errPriceTooLarge = errors.New("時間単価が大きすぎます")
)

// parsePrice は時間単価を小数第2位に丸めて返す。
func parsePrice(raw string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, errPriceFormat
	}
	p = p.Round(2)
	if p.IsNegative() {
		return decimal.Decimal{}, errPriceNegative
	}
	if p.GreaterThan(maxPrice) {
		return decimal.Decimal{}, errPriceTooLarge
	}
	return p, nil
}

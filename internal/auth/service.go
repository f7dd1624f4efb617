// Package auth はユーザー登録、パスワード認証、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hitoshi/coursebook/internal/metrics"
	"github.com/hitoshi/coursebook/internal/model"
	"github.com/hitoshi/coursebook/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int // 0以下の場合はbcrypt.DefaultCost
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	metrics     metrics.MetricsCollector
	config      ServiceConfig
	dummyHash   string
	now         func() time.Time
}

// NewService はServiceを生成する。
// 存在しないユーザーでの認証時に比較するダミーハッシュをここで用意する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) (*Service, error) {
	if collector == nil {
		collector = metrics.Nop{}
	}
	dummy, err := HashPassword("coursebook-dummy-password", config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		metrics:     collector,
		config:      config,
		dummyHash:   dummy,
		now:         time.Now,
	}, nil
}

// registerInput は登録フォームの入力値。
type registerInput struct {
	Username string
	Password string
}

func (in registerInput) validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username,
			validation.Required.Error("ユーザー名は必須です"),
			validation.RuneLength(1, 80).Error("ユーザー名は80文字以内で入力してください"),
		),
		validation.Field(&in.Password,
			validation.Required.Error("パスワードは必須です"),
			validation.Length(1, maxPasswordBytes).Error("パスワードが長すぎます"),
		),
	)
}

// Register はユーザーを登録する。
// ユーザー名とパスワードは加工せずに扱い、パスワードはbcryptハッシュのみを保存する。
func (s *Service) Register(ctx context.Context, username, password string) (*model.User, error) {
	if err := (registerInput{Username: username, Password: password}).validate(); err != nil {
		return nil, model.NewInvalidInputError(err.Error())
	}

	existing, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateUsernameError(username)
	}

	hash, err := HashPassword(password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{Username: username, PasswordHash: hash}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 事前確認と挿入の間に同名ユーザーが作られた場合
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateUsernameError(username)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.RecordRegistration()
	slog.Info("user registered", slog.Int64("user_id", user.ID))
	return user, nil
}

// Authenticate はユーザー名とパスワードを検証し、成功時にセッションを発行する。
// ユーザーが存在しない場合もダミーハッシュと比較し、失敗理由を区別しない。
func (s *Service) Authenticate(ctx context.Context, username, password string) (*model.Session, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	hash := s.dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	ok, cmpErr := comparePassword(hash, password)
	if cmpErr != nil && user != nil {
		slog.Warn("stored password hash is malformed",
			slog.Int64("user_id", user.ID),
			slog.String("error", cmpErr.Error()),
		)
	}
	if user == nil || !ok {
		s.metrics.RecordLogin(false)
		return nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLogin(true)
	slog.Info("user logged in", slog.Int64("user_id", user.ID))
	return session, nil
}

// Logout はセッションを破棄する。空または存在しないセッションIDでも成功する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CurrentUser はセッションから現在のユーザーを取得する。
// セッションが無効またはユーザーが存在しない場合はnilを返す。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	return s.UserByID(ctx, session.UserID)
}

// UserByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (s *Service) UserByID(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID int64) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

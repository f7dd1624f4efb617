package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, course, booking, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated      = "UNAUTHENTICATED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeInvalidID            = "INVALID_ID"
	ErrCodeDuplicateUsername    = "DUPLICATE_USERNAME"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeCourseNotFound       = "COURSE_NOT_FOUND"
	ErrCodeCourseHasBookings    = "COURSE_HAS_BOOKINGS"
	ErrCodeBookingNotFound      = "BOOKING_NOT_FOUND"
	ErrCodeDuplicateBooking     = "DUPLICATE_BOOKING"
	ErrCodeSelfBookingForbidden = "SELF_BOOKING_NOT_ALLOWED"
	ErrCodeRouteNotFound        = "ROUTE_NOT_FOUND"
	ErrCodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// IsCode はerr（ラップされたものを含む）が指定コードのAPIErrorかどうかを判定する。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == code
}

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は所有者以外による操作のエラーを生成する。
func NewForbiddenError(target string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この%sを操作する権限がありません。", target),
		Category: "auth",
		Action:   "マイページから自分の登録内容を確認してください。",
	}
}

// NewInvalidInputError は入力値不正エラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度送信してください。",
	}
}

// NewInvalidIDError はパスパラメータのID不正エラーを生成する。
func NewInvalidIDError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidID,
		Message:  fmt.Sprintf("無効なIDです: %s", raw),
		Category: "validation",
		Action:   "正の整数のIDを指定してください。",
	}
}

// NewDuplicateUsernameError はユーザー名重複エラーを生成する。
func NewDuplicateUsernameError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUsername,
		Message:  fmt.Sprintf("ユーザー名は既に使用されています: %s", username),
		Category: "auth",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザー名の存在有無を推測させないため、原因を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewCourseNotFoundError は講座未検出エラーを生成する。
func NewCourseNotFoundError(courseID int64) *APIError {
	return &APIError{
		Code:     ErrCodeCourseNotFound,
		Message:  fmt.Sprintf("指定された講座が見つかりません: %d", courseID),
		Category: "course",
		Action:   "講座IDを確認してください。",
	}
}

// NewCourseHasBookingsError は予約が残っている講座を削除しようとした場合のエラーを生成する。
func NewCourseHasBookingsError(courseID int64) *APIError {
	return &APIError{
		Code:     ErrCodeCourseHasBookings,
		Message:  fmt.Sprintf("予約が存在するため講座を削除できません: %d", courseID),
		Category: "course",
		Action:   "予約がすべて取り消されてから削除してください。",
	}
}

// NewBookingNotFoundError は予約未検出エラーを生成する。
func NewBookingNotFoundError(bookingID int64) *APIError {
	return &APIError{
		Code:     ErrCodeBookingNotFound,
		Message:  fmt.Sprintf("指定された予約が見つかりません: %d", bookingID),
		Category: "booking",
		Action:   "予約IDを確認してください。",
	}
}

// NewDuplicateBookingError は同一講座への重複予約エラーを生成する。
func NewDuplicateBookingError(courseID int64) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateBooking,
		Message:  fmt.Sprintf("この講座は既に予約済みです: %d", courseID),
		Category: "booking",
		Action:   "マイページから予約状況を確認してください。",
	}
}

// NewSelfBookingError は自分の講座を予約しようとした場合のエラーを生成する。
func NewSelfBookingError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfBookingForbidden,
		Message:  "自分が出品した講座は予約できません。",
		Category: "booking",
		Action:   "他のユーザーの講座を選択してください。",
	}
}

// NewRouteNotFoundError は未定義のパスへのリクエストに対するエラーを生成する。
func NewRouteNotFoundError(path string) *APIError {
	return &APIError{
		Code:     ErrCodeRouteNotFound,
		Message:  fmt.Sprintf("指定されたパスは存在しません: %s", path),
		Category: "system",
		Action:   "URLを確認してください。",
	}
}

// NewMethodNotAllowedError はパスに対して許可されていないメソッドのエラーを生成する。
func NewMethodNotAllowedError(method string) *APIError {
	return &APIError{
		Code:     ErrCodeMethodNotAllowed,
		Message:  fmt.Sprintf("このパスでは%sメソッドを使用できません。", method),
		Category: "system",
		Action:   "フォームから操作してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

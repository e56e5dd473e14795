// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// errors.Is はCodeが一致するAPIErrorを同一とみなす。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, user, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因となったエラー（ログ用、レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is はCodeで比較する。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// 定義済みエラーコード
const (
	ErrCodeInvalidAssertion   = "INVALID_ASSERTION"
	ErrCodeAssertionExpired   = "ASSERTION_EXPIRED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeTokenInvalid       = "TOKEN_INVALID"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeSigningKeyMissing  = "SIGNING_KEY_MISSING"
	ErrCodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeEmailInUse         = "EMAIL_IN_USE"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
)

// errors.Is での比較用の値。
var (
	ErrInvalidAssertion   = &APIError{Code: ErrCodeInvalidAssertion}
	ErrAssertionExpired   = &APIError{Code: ErrCodeAssertionExpired}
	ErrUserNotFound       = &APIError{Code: ErrCodeUserNotFound}
	ErrTokenInvalid       = &APIError{Code: ErrCodeTokenInvalid}
	ErrTokenExpired       = &APIError{Code: ErrCodeTokenExpired}
	ErrSigningKeyMissing  = &APIError{Code: ErrCodeSigningKeyMissing}
	ErrStorageUnavailable = &APIError{Code: ErrCodeStorageUnavailable}
	ErrTimeout            = &APIError{Code: ErrCodeTimeout}
	ErrEmailInUse         = &APIError{Code: ErrCodeEmailInUse}
	ErrValidationFailed   = &APIError{Code: ErrCodeValidationFailed}
)

// NewInvalidAssertionError はIDトークンの検証失敗エラーを生成する。
func NewInvalidAssertionError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAssertion,
		Message:  "IDトークンを検証できませんでした。",
		Category: "auth",
		Action:   "アプリから再度サインインしてください。",
		Err:      cause,
	}
}

// NewAssertionExpiredError はIDトークンの有効期限切れエラーを生成する。
func NewAssertionExpiredError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeAssertionExpired,
		Message:  "IDトークンの有効期限が切れています。",
		Category: "auth",
		Action:   "IDトークンを再取得してから再度お試しください。",
		Err:      cause,
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "user",
		Action:   "ログインし直してください。",
	}
}

// NewTokenInvalidError はセッショントークンが不正な場合のエラーを生成する。
func NewTokenInvalidError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  "セッショントークンが無効です。",
		Category: "auth",
		Action:   "ログインし直してください。",
		Err:      cause,
	}
}

// NewTokenExpiredError はセッショントークンの有効期限切れエラーを生成する。
func NewTokenExpiredError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "セッションの有効期限が切れています。",
		Category: "auth",
		Action:   "リフレッシュトークンで更新するか、ログインし直してください。",
		Err:      cause,
	}
}

// NewSigningKeyMissingError は署名鍵が未設定の場合のエラーを生成する。
// 起動時に検出され、プロセスはリクエストを受け付けない。
func NewSigningKeyMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeSigningKeyMissing,
		Message:  "セッション署名鍵が設定されていません。",
		Category: "system",
		Action:   "JWT_SECRET を設定してからサーバーを起動してください。",
	}
}

// NewStorageUnavailableError はストレージ障害エラーを生成する。
// 一時的な障害のため、呼び出し元での再試行を想定する。
func NewStorageUnavailableError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeStorageUnavailable,
		Message:  "データベースに一時的に接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      cause,
	}
}

// NewTimeoutError は処理が期限内に完了しなかった場合のエラーを生成する。
func NewTimeoutError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeTimeout,
		Message:  "処理がタイムアウトしました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      cause,
	}
}

// NewEmailInUseError はメールアドレスが別のアカウントで使用済みの場合のエラーを生成する。
func NewEmailInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailInUse,
		Message:  "このメールアドレスは別のアカウントで登録されています。",
		Category: "auth",
		Action:   "登録済みのアカウントでサインインしてください。",
	}
}

// NewValidationError は入力値が不正な場合のエラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

package auth

import (
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/polylearn/internal/model"
	"github.com/hitoshi/polylearn/internal/security"
	"github.com/hitoshi/polylearn/internal/session"
)

// 入力値の上限。usersテーブルのカラム長に合わせる。
const (
	maxDisplayNameLength      = 255
	maxLearningLanguageLength = 32
)

var (
	textSanitizer security.TextSanitizerService = security.NewTextSanitizer()
	urlGuard      security.URLGuardService      = security.NewURLGuard()
)

// RegisterRequest は登録リクエスト。
type RegisterRequest struct {
	Assertion   string
	DisplayName *string
}

// Validate は前提条件を検証する。アサーション自体の検証はVerifierが行う。
func (r RegisterRequest) Validate() error {
	if name := r.normalizedDisplayName(); name != nil && utf8.RuneCountInString(*name) > maxDisplayNameLength {
		return model.NewValidationError("displayName is too long")
	}
	return nil
}

// normalizedDisplayName はHTMLと前後の空白を除いた表示名を返す。空の場合はnil。
func (r RegisterRequest) normalizedDisplayName() *string {
	return plainTextOrNil(r.DisplayName)
}

// plainTextOrNil はHTMLを除去した文字列を返す。nilまたは結果が空の場合はnil。
func plainTextOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	text := textSanitizer.PlainText(*s)
	if text == "" {
		return nil
	}
	return &text
}

// LoginRequest はログインリクエスト。
type LoginRequest struct {
	Assertion string
}

// Validate は前提条件を検証する。
func (r LoginRequest) Validate() error {
	return nil
}

// RefreshRequest はセッション更新リクエスト。
type RefreshRequest struct {
	RefreshToken string
}

// Validate は前提条件を検証する。
func (r RefreshRequest) Validate() error {
	if strings.TrimSpace(r.RefreshToken) == "" {
		return model.NewValidationError("refreshToken is required")
	}
	return nil
}

// Result は認証操作の結果。
type Result struct {
	User    *model.User
	Session *session.Pair
	// Created は今回の操作でユーザーが新規作成されたか
	Created bool
}

// normalizeProfileUpdate は保存前に文字列フィールドを整える。
// 表示名と学習言語はHTMLを除去し、URLは前後の空白を除く。
// 空文字列への更新（値の消去）はそのまま残す。
func normalizeProfileUpdate(u model.ProfileUpdate) model.ProfileUpdate {
	out := u
	if u.DisplayName != nil {
		out.DisplayName = model.StringPtr(textSanitizer.PlainText(*u.DisplayName))
	}
	if u.LearningLanguage != nil {
		out.LearningLanguage = model.StringPtr(textSanitizer.PlainText(*u.LearningLanguage))
	}
	if u.PhotoURL != nil {
		out.PhotoURL = model.StringPtr(strings.TrimSpace(*u.PhotoURL))
	}
	if u.Avatar != nil {
		out.Avatar = model.StringPtr(strings.TrimSpace(*u.Avatar))
	}
	return out
}

// ValidateProfileUpdate はプロフィール更新の入力値を検証する。
// 写真URLは公開ホストを指すhttp(s)のURLのみ受け付ける。
func ValidateProfileUpdate(u model.ProfileUpdate) error {
	if u.DisplayName != nil && utf8.RuneCountInString(*u.DisplayName) > maxDisplayNameLength {
		return model.NewValidationError("displayName is too long")
	}
	if u.LearningLanguage != nil && utf8.RuneCountInString(*u.LearningLanguage) > maxLearningLanguageLength {
		return model.NewValidationError("learningLanguage is too long")
	}
	if u.PhotoURL != nil && *u.PhotoURL != "" {
		if err := urlGuard.ValidateURL(*u.PhotoURL); err != nil {
			return model.NewValidationError("photoUrl must be a public http(s) URL")
		}
	}
	if u.Avatar != nil && len(*u.Avatar) > security.MaxURLLength {
		return model.NewValidationError("avatar is too long")
	}
	return nil
}

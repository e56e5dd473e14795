// Package identity は外部IdPが発行したIDトークン（アサーション）を検証する。
package identity

import (
	"context"
	"fmt"
	"time"
)

// Mode は検証器の種類。
type Mode string

const (
	// ModeFirebase はFirebase AuthenticationのIDトークンを検証する。
	ModeFirebase Mode = "firebase"
	// ModeMock は開発・テスト用の固定形式アサーションを受け付ける。
	ModeMock Mode = "mock"
)

// DefaultFirebaseJWKSURL はFirebase IDトークン署名鍵の公開JWKSエンドポイント。
const DefaultFirebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

// Claim は検証済みアサーションから取り出した本人情報。
type Claim struct {
	SubjectID   string
	Email       string
	DisplayName *string
	ExpiresAt   time.Time
}

// Verifier はアサーションを検証するインターフェース。
// 実装は副作用を持たず、複数goroutineから同時に呼び出せる。
//
// エラーは次のいずれか:
//   - model.ErrInvalidAssertion: 空・署名不正・発行者/受信者不一致・sub/email欠落
//   - model.ErrAssertionExpired: 有効期限切れ
//   - model.ErrTimeout: 鍵取得中のctxの期限切れ・キャンセル
type Verifier interface {
	Verify(ctx context.Context, assertion string) (*Claim, error)
}

// Config は検証器の生成設定。
type Config struct {
	Mode              Mode
	FirebaseProjectID string
	JWKSURL           string
}

// ParseMode は文字列をModeに変換する。
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFirebase, ModeMock:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown identity verifier mode: %q", s)
	}
}

// NewVerifier はcfg.Modeに応じた検証器を生成する。
// 未知のモードは黙ってモックに切り替えずエラーにする。
func NewVerifier(ctx context.Context, cfg Config) (Verifier, error) {
	switch cfg.Mode {
	case ModeFirebase:
		return NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.JWKSURL)
	case ModeMock:
		return NewMockVerifier(), nil
	default:
		return nil, fmt.Errorf("unknown identity verifier mode: %q", cfg.Mode)
	}
}

// Package session は署名付きセッショントークン（JWT）の発行と検証を提供する。
// トークンは自己完結しており、サーバー側で発行済みトークンを保存しない。
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hitoshi/polylearn/internal/model"
)

const (
	// DefaultAccessTTL はアクセストークンの既定の有効期間（7日）。
	DefaultAccessTTL = 7 * 24 * time.Hour
	// DefaultRefreshTTL はリフレッシュトークンの既定の有効期間（30日）。
	DefaultRefreshTTL = 30 * 24 * time.Hour
	// DefaultIssuer はissクレームの既定値。
	DefaultIssuer = "polylearn"

	kindRefresh = "refresh"
)

// Payload はトークンに埋め込むユーザー情報。
type Payload struct {
	UserID string
	Email  string
}

// Credential は発行済みトークンとその有効期間。
type Credential struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Pair はアクセストークンとリフレッシュトークンの組。
type Pair struct {
	Access  *Credential
	Refresh *Credential
}

// Claims はJWTのクレーム。
// アクセストークンのクレームは {userId, email, exp, iat, jti, iss}。
// リフレッシュトークンは加えて kind="refresh" を持つ。
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Kind   string `json:"kind,omitempty"`
	jwt.RegisteredClaims
}

// Config はIssuerの設定。
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Issuer はHS256でトークンを署名・検証する。
// 生成後は不変のため、複数goroutineから同時に利用できる。
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// Option はIssuerの生成オプション。
type Option func(*Issuer)

// WithClock は発行・検証で使う時計を差し替える。
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer はIssuerを生成する。
// 署名鍵が空の場合は SIGNING_KEY_MISSING を返す。起動時に呼び出して致命的エラーとして扱うこと。
func NewIssuer(cfg Config, opts ...Option) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, model.NewSigningKeyMissingError()
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	i := &Issuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}

	i.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)

	return i, nil
}

// AccessTTL はアクセストークンの有効期間を返す。
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// RefreshTTL はリフレッシュトークンの有効期間を返す。
func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// Issue はttlの有効期間を持つアクセストークンを発行する。
func (i *Issuer) Issue(p Payload, ttl time.Duration) (*Credential, error) {
	return i.sign(p, ttl, "")
}

// IssuePair はアクセストークンとリフレッシュトークンを発行する。
func (i *Issuer) IssuePair(p Payload) (*Pair, error) {
	access, err := i.sign(p, i.accessTTL, "")
	if err != nil {
		return nil, err
	}
	refresh, err := i.sign(p, i.refreshTTL, kindRefresh)
	if err != nil {
		return nil, err
	}
	return &Pair{Access: access, Refresh: refresh}, nil
}

// Verify はアクセストークンを検証しペイロードを返す。
// 期限切れは TOKEN_EXPIRED、署名不一致・形式不正・リフレッシュトークンは TOKEN_INVALID。
func (i *Issuer) Verify(token string) (*Payload, error) {
	claims, err := i.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.Kind != "" {
		return nil, model.NewTokenInvalidError(fmt.Errorf("unexpected token kind %q", claims.Kind))
	}
	return &Payload{UserID: claims.UserID, Email: claims.Email}, nil
}

// VerifyRefresh はリフレッシュトークンを検証しペイロードを返す。
func (i *Issuer) VerifyRefresh(token string) (*Payload, error) {
	claims, err := i.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kindRefresh {
		return nil, model.NewTokenInvalidError(errors.New("not a refresh token"))
	}
	return &Payload{UserID: claims.UserID, Email: claims.Email}, nil
}

func (i *Issuer) sign(p Payload, ttl time.Duration, kind string) (*Credential, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive: %s", ttl)
	}

	issuedAt := i.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: p.UserID,
		Email:  p.Email,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Credential{
		Token:     signed,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

func (i *Issuer) parse(token string) (*Claims, error) {
	if token == "" {
		return nil, model.NewTokenInvalidError(errors.New("empty token"))
	}

	claims := &Claims{}
	parsed, err := i.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.NewTokenExpiredError(err)
		}
		return nil, model.NewTokenInvalidError(err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, model.NewTokenInvalidError(errors.New("invalid token claims"))
	}

	return claims, nil
}

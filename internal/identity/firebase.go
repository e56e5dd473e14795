package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hitoshi/polylearn/internal/model"
)

const firebaseIssuerPrefix = "https://securetoken.google.com/"

// FirebaseVerifier はFirebase IDトークンをJWKSの公開鍵で検証する。
// 発行者は https://securetoken.google.com/<projectID>、受信者はprojectID。
type FirebaseVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// FirebaseOption はFirebaseVerifierの生成オプション。
type FirebaseOption func(*oidc.Config)

// WithNow は有効期限の判定に使う時計を差し替える。
func WithNow(now func() time.Time) FirebaseOption {
	return func(c *oidc.Config) {
		c.Now = now
	}
}

// NewFirebaseVerifier はリモートJWKSを使う検証器を生成する。
// 鍵は最初の検証時に遅延取得され、以降はキャッシュされる。
func NewFirebaseVerifier(ctx context.Context, projectID, jwksURL string, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	if projectID == "" {
		return nil, errors.New("firebase project id is required")
	}
	if jwksURL == "" {
		jwksURL = DefaultFirebaseJWKSURL
	}
	return NewFirebaseVerifierWithKeySet(projectID, oidc.NewRemoteKeySet(ctx, jwksURL), opts...)
}

// NewFirebaseVerifierWithKeySet は任意の鍵セットを使う検証器を生成する。
func NewFirebaseVerifierWithKeySet(projectID string, keySet oidc.KeySet, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	if projectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	cfg := &oidc.Config{
		ClientID:             projectID,
		SupportedSigningAlgs: []string{oidc.RS256},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &FirebaseVerifier{
		verifier: oidc.NewVerifier(firebaseIssuerPrefix+projectID, keySet, cfg),
	}, nil
}

// Verify はIDトークンを検証し本人情報を返す。
func (v *FirebaseVerifier) Verify(ctx context.Context, assertion string) (*Claim, error) {
	if assertion == "" {
		return nil, model.NewInvalidAssertionError(errors.New("empty assertion"))
	}

	idToken, err := v.verifier.Verify(ctx, assertion)
	if err != nil {
		var expired *oidc.TokenExpiredError
		switch {
		case errors.As(err, &expired):
			return nil, model.NewAssertionExpiredError(err)
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return nil, model.NewTimeoutError(err)
		case ctx.Err() != nil:
			return nil, model.NewTimeoutError(ctx.Err())
		default:
			return nil, model.NewInvalidAssertionError(err)
		}
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, model.NewInvalidAssertionError(fmt.Errorf("failed to decode claims: %w", err))
	}

	if idToken.Subject == "" || claims.Email == "" {
		return nil, model.NewInvalidAssertionError(errors.New("assertion missing required claims"))
	}

	claim := &Claim{
		SubjectID: idToken.Subject,
		Email:     claims.Email,
		ExpiresAt: idToken.Expiry,
	}
	if claims.Name != "" {
		claim.DisplayName = model.StringPtr(claims.Name)
	}
	return claim, nil
}

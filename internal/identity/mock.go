package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hitoshi/polylearn/internal/model"
)

// MockVerifier は "<subject>:<email>[:<displayName>]" 形式のアサーションを受け付ける。
// 署名検証を行わないため、IDENTITY_VERIFIER_MODE=mock を明示した場合にのみ使う。
type MockVerifier struct {
	now func() time.Time
}

// NewMockVerifier はMockVerifierを生成する。
func NewMockVerifier() *MockVerifier {
	return &MockVerifier{now: time.Now}
}

// Verify はアサーションを分解して本人情報を返す。
func (v *MockVerifier) Verify(ctx context.Context, assertion string) (*Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewTimeoutError(err)
	}
	if assertion == "" {
		return nil, model.NewInvalidAssertionError(errors.New("empty assertion"))
	}

	parts := strings.SplitN(assertion, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, model.NewInvalidAssertionError(errors.New("malformed mock assertion"))
	}

	claim := &Claim{
		SubjectID: parts[0],
		Email:     parts[1],
		ExpiresAt: v.now().Add(time.Hour),
	}
	if len(parts) == 3 && parts[2] != "" {
		claim.DisplayName = model.StringPtr(parts[2])
	}
	return claim, nil
}

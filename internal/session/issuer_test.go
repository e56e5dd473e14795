package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/polylearn/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-0123456789"

// fakeClock はテスト用の進められる時計。
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestIssuer(t *testing.T, clock *fakeClock) *Issuer {
	t.Helper()
	iss, err := NewIssuer(Config{Secret: testSecret, AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour}, WithClock(clock.Now))
	require.NoError(t, err)
	return iss
}

func TestNewIssuer_EmptySecretIsSigningKeyMissing(t *testing.T) {
	_, err := NewIssuer(Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSigningKeyMissing))
}

func TestNewIssuer_AppliesDefaults(t *testing.T) {
	iss, err := NewIssuer(Config{Secret: testSecret})
	require.NoError(t, err)
	assert.Equal(t, DefaultAccessTTL, iss.AccessTTL())
	assert.Equal(t, DefaultRefreshTTL, iss.RefreshTTL())
	assert.Equal(t, DefaultIssuer, iss.issuer)
}

func TestIssue_VerifyRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	iss := newTestIssuer(t, clock)

	cred, err := iss.Issue(Payload{UserID: "u-1", Email: "a@x.io"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, clock.now, cred.IssuedAt)
	assert.Equal(t, clock.now.Add(time.Hour), cred.ExpiresAt)
	assert.Len(t, strings.Split(cred.Token, "."), 3)

	p, err := iss.Verify(cred.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", p.UserID)
	assert.Equal(t, "a@x.io", p.Email)
}

func TestVerify_ExpiredToken(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	iss := newTestIssuer(t, clock)

	cred, err := iss.Issue(Payload{UserID: "u-1", Email: "a@x.io"}, time.Second)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)

	_, err = iss.Verify(cred.Token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrTokenExpired), "got %v", err)
}

func TestVerify_InvalidTokens(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	iss := newTestIssuer(t, clock)

	cred, err := iss.Issue(Payload{UserID: "u-1", Email: "a@x.io"}, time.Hour)
	require.NoError(t, err)

	other, err := NewIssuer(Config{Secret: "another-secret"}, WithClock(clock.Now))
	require.NoError(t, err)
	foreign, err := other.Issue(Payload{UserID: "u-1", Email: "a@x.io"}, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewIssuer(Config{Secret: testSecret, Issuer: "someone-else"}, WithClock(clock.Now))
	require.NoError(t, err)
	wrongIss, err := otherIssuer.Issue(Payload{UserID: "u-1", Email: "a@x.io"}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(cred.Token, ".")
	tamperedClaims, _ := json.Marshal(map[string]any{
		"userId": "u-2",
		"email":  "a@x.io",
		"iss":    DefaultIssuer,
		"exp":    clock.now.Add(time.Hour).Unix(),
	})
	tampered := parts[0] + "." + base64.RawURLEncoding.EncodeToString(tamperedClaims) + "." + parts[2]

	noneToken := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
		},
	})
	none, err := noneToken.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
		},
	})
	otherAlg, err := hs512.SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           "u-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: DefaultIssuer},
	})
	noExpToken, err := noExp.SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"空文字列", ""},
		{"JWT形式ではない", "not-a-jwt"},
		{"ペイロード改ざん", tampered},
		{"別の鍵で署名", foreign.Token},
		{"発行者が異なる", wrongIss.Token},
		{"alg=none", none},
		{"HS256以外のアルゴリズム", otherAlg},
		{"expなし", noExpToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := iss.Verify(tt.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrTokenInvalid), "got %v", err)
		})
	}
}

func TestIssuePair_RefreshIsSeparateKind(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	iss := newTestIssuer(t, clock)

	pair, err := iss.IssuePair(Payload{UserID: "u-1", Email: "a@x.io"})
	require.NoError(t, err)
	assert.Equal(t, clock.now.Add(time.Hour), pair.Access.ExpiresAt)
	assert.Equal(t, clock.now.Add(24*time.Hour), pair.Refresh.ExpiresAt)

	_, err = iss.Verify(pair.Refresh.Token)
	assert.True(t, errors.Is(err, model.ErrTokenInvalid), "refresh token must not authenticate requests")

	_, err = iss.VerifyRefresh(pair.Access.Token)
	assert.True(t, errors.Is(err, model.ErrTokenInvalid), "access token must not refresh")

	p, err := iss.VerifyRefresh(pair.Refresh.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", p.UserID)
}

func TestIssue_ClaimsWireShape(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	iss := newTestIssuer(t, clock)

	cred, err := iss.Issue(Payload{UserID: "u-1", Email: "a@x.io"}, time.Hour)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(strings.Split(cred.Token, ".")[1])
	require.NoError(t, err)

	var claims map[string]any
	require.NoError(t, json.Unmarshal(raw, &claims))

	for _, key := range []string{"userId", "email", "exp", "iat", "jti", "iss"} {
		assert.Contains(t, claims, key)
	}
	assert.NotContains(t, claims, "kind")
	assert.Equal(t, float64(clock.now.Add(time.Hour).Unix()), claims["exp"])
}

func TestIssue_UniqueTokenIDs(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	iss := newTestIssuer(t, clock)

	a, err := iss.Issue(Payload{UserID: "u-1"}, time.Hour)
	require.NoError(t, err)
	b, err := iss.Issue(Payload{UserID: "u-1"}, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, b.Token)
}

func TestIssue_RejectsNonPositiveTTL(t *testing.T) {
	iss := newTestIssuer(t, &fakeClock{now: time.Now()})
	_, err := iss.Issue(Payload{UserID: "u-1"}, 0)
	assert.Error(t, err)
}

package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewUserNotFoundError())

	assert.True(t, errors.Is(err, ErrUserNotFound))
	assert.False(t, errors.Is(err, ErrTokenInvalid))
}

func TestAPIError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStorageUnavailableError(cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrStorageUnavailable))
	assert.Contains(t, err.Error(), "STORAGE_UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAPIError_ErrorWithoutCause(t *testing.T) {
	err := NewEmailInUseError()
	assert.Equal(t, "[EMAIL_IN_USE] このメールアドレスは別のアカウントで登録されています。", err.Error())
}

func TestParseSubscriptionTier(t *testing.T) {
	for _, s := range []string{"free", "plus", "pro"} {
		tier, err := ParseSubscriptionTier(s)
		assert.NoError(t, err)
		assert.Equal(t, SubscriptionTier(s), tier)
	}

	_, err := ParseSubscriptionTier("enterprise")
	assert.Error(t, err)
}

func TestProfileUpdate_IsEmpty(t *testing.T) {
	assert.True(t, ProfileUpdate{}.IsEmpty())
	assert.False(t, ProfileUpdate{PhotoURL: StringPtr("")}.IsEmpty())
}

func TestUserKey(t *testing.T) {
	assert.True(t, UserKey{}.IsZero())
	assert.Equal(t, "external_id:ext-1", ByExternalID("ext-1").String())
	assert.Equal(t, "id:u-1", ByID("u-1").String())
}

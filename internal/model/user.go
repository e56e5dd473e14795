// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// SubscriptionTier はユーザーの課金プランを表す。
type SubscriptionTier string

const (
	// TierFree は無料プラン。新規ユーザーのデフォルト。
	TierFree SubscriptionTier = "free"
	// TierPlus はPlusプラン。
	TierPlus SubscriptionTier = "plus"
	// TierPro はProプラン。
	TierPro SubscriptionTier = "pro"
)

// ParseSubscriptionTier は文字列をSubscriptionTierに変換する。
func ParseSubscriptionTier(s string) (SubscriptionTier, error) {
	switch SubscriptionTier(s) {
	case TierFree, TierPlus, TierPro:
		return SubscriptionTier(s), nil
	default:
		return "", fmt.Errorf("unknown subscription tier: %q", s)
	}
}

// User は学習者アカウントを表す。
// ExternalIDは外部IdP（Firebase）のUIDで、ユーザー照合のキーとなる。
type User struct {
	ID               string
	ExternalID       string
	Email            string
	DisplayName      *string
	Avatar           *string
	PhotoURL         *string
	LearningLanguage *string

	StreakDays       int
	LastActivityDate *time.Time // 日付のみ意味を持つ（UTC 0時で保持）

	SubscriptionTier      SubscriptionTier
	SubscriptionExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser はユーザー作成時の入力を表す。
type NewUser struct {
	ExternalID  string
	Email       string
	DisplayName *string
}

// ProfileUpdate はプロフィールの部分更新を表す。
// nilのフィールドは変更しない。空文字列を含む非nilの値は上書きする。
type ProfileUpdate struct {
	DisplayName      *string
	Avatar           *string
	LearningLanguage *string
	PhotoURL         *string
}

// IsEmpty は更新対象のフィールドが1つも指定されていないかを返す。
func (u ProfileUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.Avatar == nil && u.LearningLanguage == nil && u.PhotoURL == nil
}

// UserKey はユーザーを特定するキー。ExternalIDとIDのどちらか一方を持つ。
type UserKey struct {
	ExternalID string
	ID         string
}

// ByExternalID は外部IdPのUIDで検索するUserKeyを返す。
func ByExternalID(externalID string) UserKey {
	return UserKey{ExternalID: externalID}
}

// ByID は内部IDで検索するUserKeyを返す。
func ByID(id string) UserKey {
	return UserKey{ID: id}
}

// IsZero はキーが未指定かを返す。
func (k UserKey) IsZero() bool {
	return k.ExternalID == "" && k.ID == ""
}

// String はログ出力用の表現を返す。
func (k UserKey) String() string {
	if k.ExternalID != "" {
		return "external_id:" + k.ExternalID
	}
	return "id:" + k.ID
}

// StringPtr は文字列のポインタを返す。
func StringPtr(s string) *string {
	return &s
}

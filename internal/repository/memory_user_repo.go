package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/polylearn/internal/model"
	"github.com/hitoshi/polylearn/internal/streak"
)

// MemoryUserRepo はプロセス内メモリに保持するユーザーリポジトリ。
// STORE_DRIVER=memory の開発用途とテストで使う。プロセス終了でデータは失われる。
// 一意性と行単位の直列化はミューテックスで保証し、PostgresUserRepoと同じ振る舞いをする。
type MemoryUserRepo struct {
	mu         sync.Mutex
	byID       map[string]*model.User
	byExternal map[string]string // external_id -> id
	byEmail    map[string]string // email -> id
	now        func() time.Time
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:       make(map[string]*model.User),
		byExternal: make(map[string]string),
		byEmail:    make(map[string]string),
		now:        time.Now,
	}
}

// FindByExternalID は外部IdPのUIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byExternal[externalID]
	if !ok {
		return nil, nil
	}
	return copyUser(r.byID[id]), nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

// Exists は外部IDのユーザーが存在するかを返す。
func (r *MemoryUserRepo) Exists(ctx context.Context, externalID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.byExternal[externalID]
	return ok, nil
}

// Create はユーザーを作成する。同じ外部IDが既にあれば inserted=false で既存行を返す。
func (r *MemoryUserRepo) Create(ctx context.Context, input model.NewUser) (*model.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// ロック待ちの間に期限切れになった場合は書き込まない
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	if id, ok := r.byExternal[input.ExternalID]; ok {
		return copyUser(r.byID[id]), false, nil
	}
	if _, ok := r.byEmail[input.Email]; ok {
		return nil, false, ErrEmailConflict
	}

	now := r.now().UTC()
	u := &model.User{
		ID:               uuid.New().String(),
		ExternalID:       input.ExternalID,
		Email:            input.Email,
		DisplayName:      copyString(input.DisplayName),
		SubscriptionTier: model.TierFree,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.byID[u.ID] = u
	r.byExternal[u.ExternalID] = u.ID
	r.byEmail[u.Email] = u.ID

	return copyUser(u), true, nil
}

// UpdateFields はnilでないフィールドのみを上書きし、updated_atを更新する。
func (r *MemoryUserRepo) UpdateFields(ctx context.Context, key model.UserKey, update model.ProfileUpdate) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.lookup(key)
	if u == nil {
		return nil, nil
	}

	if update.DisplayName != nil {
		u.DisplayName = copyString(update.DisplayName)
	}
	if update.Avatar != nil {
		u.Avatar = copyString(update.Avatar)
	}
	if update.LearningLanguage != nil {
		u.LearningLanguage = copyString(update.LearningLanguage)
	}
	if update.PhotoURL != nil {
		u.PhotoURL = copyString(update.PhotoURL)
	}
	r.touch(u)

	return copyUser(u), nil
}

// ApplyActivity はtodayのアクティビティをストリークに反映する。
func (r *MemoryUserRepo) ApplyActivity(ctx context.Context, externalID string, today time.Time) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u := r.lookup(model.ByExternalID(externalID))
	if u == nil {
		return nil, nil
	}

	next := streak.Reconcile(streak.State{Days: u.StreakDays, LastActivity: u.LastActivityDate}, today)
	if next.Changed {
		last := next.LastActivity
		u.StreakDays = next.Days
		u.LastActivityDate = &last
		r.touch(u)
	}

	return copyUser(u), nil
}

func (r *MemoryUserRepo) lookup(key model.UserKey) *model.User {
	id := key.ID
	if key.ExternalID != "" {
		var ok bool
		if id, ok = r.byExternal[key.ExternalID]; !ok {
			return nil
		}
	}
	return r.byID[id]
}

func (r *MemoryUserRepo) touch(u *model.User) {
	now := r.now().UTC()
	if now.Before(u.CreatedAt) {
		now = u.CreatedAt
	}
	u.UpdatedAt = now
}

func copyUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := *u
	c.DisplayName = copyString(u.DisplayName)
	c.Avatar = copyString(u.Avatar)
	c.PhotoURL = copyString(u.PhotoURL)
	c.LearningLanguage = copyString(u.LearningLanguage)
	if u.LastActivityDate != nil {
		t := *u.LastActivityDate
		c.LastActivityDate = &t
	}
	if u.SubscriptionExpiresAt != nil {
		t := *u.SubscriptionExpiresAt
		c.SubscriptionExpiresAt = &t
	}
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// compile-time interface check
var _ UserRepository = (*MemoryUserRepo)(nil)

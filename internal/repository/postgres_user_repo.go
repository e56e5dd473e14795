package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/polylearn/internal/model"
	"github.com/hitoshi/polylearn/internal/streak"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation = "23505"

	constraintEmail = "users_email_key"

	userColumns = `id, external_id, email, display_name, avatar, photo_url, learning_language,
		streak_days, last_activity_date, subscription_tier, subscription_expires_at,
		created_at, updated_at`

	// updated_at は常に created_at 以上に保つ
	touchUpdatedAt = `updated_at = GREATEST(now(), created_at)`
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var displayName, avatar, photoURL, learningLanguage sql.NullString
	var lastActivity, subscriptionExpiresAt sql.NullTime
	var tier string

	if err := row.Scan(
		&user.ID, &user.ExternalID, &user.Email,
		&displayName, &avatar, &photoURL, &learningLanguage,
		&user.StreakDays, &lastActivity, &tier, &subscriptionExpiresAt,
		&user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	user.DisplayName = nullStringPtr(displayName)
	user.Avatar = nullStringPtr(avatar)
	user.PhotoURL = nullStringPtr(photoURL)
	user.LearningLanguage = nullStringPtr(learningLanguage)
	user.SubscriptionTier = model.SubscriptionTier(tier)
	if lastActivity.Valid {
		d := streak.Date(lastActivity.Time)
		user.LastActivityDate = &d
	}
	if subscriptionExpiresAt.Valid {
		t := subscriptionExpiresAt.Time
		user.SubscriptionExpiresAt = &t
	}

	return user, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// FindByExternalID は外部IdPのUIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = $1`,
		externalID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external ID: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
// UUID形式でないIDは存在しないものとして扱う。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// Exists は外部IDのユーザーが存在するかを返す。
func (r *PostgresUserRepo) Exists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE external_id = $1)`,
		externalID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// Create はユーザーを作成する。
// 外部IDの衝突はON CONFLICTで吸収し、既存行を読み直して inserted=false で返す。
// メールアドレスの一意制約違反は ErrEmailConflict を返す。
func (r *PostgresUserRepo) Create(ctx context.Context, input model.NewUser) (*model.User, bool, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, external_id, email, display_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (external_id) DO NOTHING
		 RETURNING `+userColumns,
		uuid.New().String(), input.ExternalID, input.Email, input.DisplayName,
	))

	switch {
	case err == nil:
		return user, true, nil
	case errors.Is(err, sql.ErrNoRows):
		// 同じ外部IDの行が先に確定していた
	default:
		constraint, unique := uniqueViolation(err)
		if !unique {
			return nil, false, fmt.Errorf("failed to insert user: %w", err)
		}
		if constraint == constraintEmail {
			existing, findErr := r.FindByExternalID(ctx, input.ExternalID)
			if findErr != nil {
				return nil, false, findErr
			}
			if existing == nil {
				return nil, false, ErrEmailConflict
			}
		}
	}

	existing, err := r.FindByExternalID(ctx, input.ExternalID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("user %s vanished after insert conflict", input.ExternalID)
	}
	return existing, false, nil
}

// UpdateFields はnilでないフィールドのみを上書きし、updated_atを更新する。
// 見つからない場合はnilを返す。
func (r *PostgresUserRepo) UpdateFields(ctx context.Context, key model.UserKey, update model.ProfileUpdate) (*model.User, error) {
	if key.IsZero() {
		return nil, errors.New("user key is required")
	}

	var sets []string
	var args []any
	add := func(column string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("display_name", update.DisplayName)
	add("avatar", update.Avatar)
	add("learning_language", update.LearningLanguage)
	add("photo_url", update.PhotoURL)
	sets = append(sets, touchUpdatedAt)

	var where string
	if key.ExternalID != "" {
		args = append(args, key.ExternalID)
		where = fmt.Sprintf("external_id = $%d", len(args))
	} else {
		if _, err := uuid.Parse(key.ID); err != nil {
			return nil, nil
		}
		args = append(args, key.ID)
		where = fmt.Sprintf("id = $%d", len(args))
	}

	query := `UPDATE users SET ` + strings.Join(sets, ", ") +
		` WHERE ` + where +
		` RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user %s: %w", key, err)
	}
	return user, nil
}

// ApplyActivity はtodayのアクティビティをストリークに反映する。
// SELECT ... FOR UPDATE で行をロックし、同日の並行ログインを直列化する。
// ストリークが変化しない場合は書き込まずに現在の行を返す。
func (r *PostgresUserRepo) ApplyActivity(ctx context.Context, externalID string, today time.Time) (*model.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = $1 FOR UPDATE`,
		externalID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}

	next := streak.Reconcile(streak.State{
		Days:         current.StreakDays,
		LastActivity: current.LastActivityDate,
	}, today)

	if !next.Changed {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return current, nil
	}

	updated, err := scanUser(tx.QueryRowContext(ctx,
		`UPDATE users SET streak_days = $2, last_activity_date = $3::date, `+touchUpdatedAt+`
		 WHERE id = $1
		 RETURNING `+userColumns,
		current.ID, next.Days, next.LastActivity.Format(time.DateOnly),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update streak: %w", err)
	}

	// 期限切れならロールバックし、呼び出し元に反映済みと誤認させない
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return updated, nil
}

// uniqueViolation はerrが一意制約違反かを判定し、違反した制約名を返す。
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)

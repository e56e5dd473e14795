// Package auth は外部IdPで検証した本人情報と内部ユーザーの照合、
// およびセッショントークンの発行を提供する。
//
// 処理の流れ:
//
//	アサーション受信 → 検証 → {既存ユーザー | 新規作成} → セッション発行
//
// いずれかの段階で失敗した場合は *model.APIError を返して終了する。
// サービス自身はロックを持たず、同一性の保証はリポジトリの一意制約と行ロックに依存する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/polylearn/internal/identity"
	"github.com/hitoshi/polylearn/internal/metrics"
	"github.com/hitoshi/polylearn/internal/model"
	"github.com/hitoshi/polylearn/internal/repository"
	"github.com/hitoshi/polylearn/internal/session"
	"github.com/hitoshi/polylearn/internal/streak"
)

// TokenIssuer はセッショントークンの発行と検証のインターフェース。
type TokenIssuer interface {
	IssuePair(p session.Payload) (*session.Pair, error)
	Verify(token string) (*session.Payload, error)
	VerifyRefresh(token string) (*session.Payload, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// Location はストリークの日付境界に使うタイムゾーン。nilの場合はUTC。
	Location *time.Location
	// Now は現在時刻の取得関数。nilの場合はtime.Now。
	Now func() time.Time
}

// Service は本人照合とセッション発行のビジネスロジックを提供する。
type Service struct {
	verifier identity.Verifier
	users    repository.UserRepository
	tokens   TokenIssuer
	metrics  metrics.MetricsCollector
	location *time.Location
	now      func() time.Time
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	verifier identity.Verifier,
	users repository.UserRepository,
	tokens TokenIssuer,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	loc := config.Location
	if loc == nil {
		loc = time.UTC
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		verifier: verifier,
		users:    users,
		tokens:   tokens,
		metrics:  collector,
		location: loc,
		now:      now,
	}
}

// Register はアサーションを検証し、ユーザーを作成してセッションを発行する。
// 既に登録済みの場合はエラーにせず、既存ユーザーと新しいセッションを返す（Created=false）。
// 表示名はリクエストの値を優先し、なければアサーションの値を使う。
func (s *Service) Register(ctx context.Context, req RegisterRequest) (result *Result, err error) {
	defer func() { s.recordOutcome(metrics.OpRegister, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	claim, err := s.verify(ctx, req.Assertion)
	if err != nil {
		return nil, err
	}

	exists, err := s.users.Exists(ctx, claim.SubjectID)
	if err != nil {
		return nil, s.storageError(ctx, "exists", err)
	}

	if exists {
		user, err := s.users.FindByExternalID(ctx, claim.SubjectID)
		if err != nil {
			return nil, s.storageError(ctx, "find_by_external_id", err)
		}
		if user != nil {
			slog.Info("register for existing user",
				slog.String("user_id", user.ID),
				slog.String("external_id", user.ExternalID),
			)
			return s.issue(user, false)
		}
	}

	displayName := req.normalizedDisplayName()
	if displayName == nil {
		displayName = plainTextOrNil(claim.DisplayName)
	}

	user, created, err := s.createUser(ctx, claim, displayName)
	if err != nil {
		return nil, err
	}
	return s.issue(user, created)
}

// Login はアサーションを検証し、セッションを発行する。
// 未登録の場合は自動で作成する（UserNotFoundにはならない）。
// 既存ユーザーの場合は今日のアクティビティをストリークに反映する。
func (s *Service) Login(ctx context.Context, req LoginRequest) (result *Result, err error) {
	defer func() { s.recordOutcome(metrics.OpLogin, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	claim, err := s.verify(ctx, req.Assertion)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.FindByExternalID(ctx, claim.SubjectID)
	if err != nil {
		return nil, s.storageError(ctx, "find_by_external_id", err)
	}

	if existing == nil {
		user, created, err := s.createUser(ctx, claim, plainTextOrNil(claim.DisplayName))
		if err != nil {
			return nil, err
		}
		return s.issue(user, created)
	}

	today := streak.Today(s.now(), s.location)
	user, err := s.users.ApplyActivity(ctx, claim.SubjectID, today)
	if err != nil {
		return nil, s.storageError(ctx, "apply_activity", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	s.metrics.RecordStreakDays(user.StreakDays)
	slog.Info("existing user logged in",
		slog.String("user_id", user.ID),
		slog.Int("streak_days", user.StreakDays),
	)

	return s.issue(user, false)
}

// Refresh はリフレッシュトークンを検証し、新しいセッションを発行する。
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (result *Result, err error) {
	defer func() { s.recordOutcome(metrics.OpRefresh, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload, err := s.tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, payload.UserID)
	if err != nil {
		return nil, s.storageError(ctx, "find_by_id", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return s.issue(user, false)
}

// Authenticate はアクセストークンを検証し、ペイロードを返す。
// ストアには問い合わせない。
func (s *Service) Authenticate(token string) (*session.Payload, error) {
	return s.tokens.Verify(token)
}

// GetProfile はユーザーのプロフィールを返す。存在しない場合は USER_NOT_FOUND。
func (s *Service) GetProfile(ctx context.Context, key model.UserKey) (*model.User, error) {
	if key.IsZero() {
		return nil, model.NewValidationError("user key is required")
	}

	var user *model.User
	var err error
	if key.ExternalID != "" {
		user, err = s.users.FindByExternalID(ctx, key.ExternalID)
	} else {
		user, err = s.users.FindByID(ctx, key.ID)
	}
	if err != nil {
		return nil, s.storageError(ctx, "find_user", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile はnilでないフィールドのみを上書きし、更新後のプロフィールを返す。
// 存在しない場合は USER_NOT_FOUND。
func (s *Service) UpdateProfile(ctx context.Context, key model.UserKey, update model.ProfileUpdate) (*model.User, error) {
	if key.IsZero() {
		return nil, model.NewValidationError("user key is required")
	}
	update = normalizeProfileUpdate(update)
	if err := ValidateProfileUpdate(update); err != nil {
		return nil, err
	}

	user, err := s.users.UpdateFields(ctx, key, update)
	if err != nil {
		return nil, s.storageError(ctx, "update_fields", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("profile updated", slog.String("user_id", user.ID))
	return user, nil
}

// verify はアサーションを検証する。ストアの接続はこの間保持しない。
func (s *Service) verify(ctx context.Context, assertion string) (*identity.Claim, error) {
	start := time.Now()
	claim, err := s.verifier.Verify(ctx, assertion)
	s.metrics.RecordVerifyLatency(time.Since(start))
	if err == nil {
		return claim, nil
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return nil, err
	}
	if isContextError(ctx, err) {
		return nil, model.NewTimeoutError(err)
	}
	return nil, model.NewInvalidAssertionError(err)
}

// createUser はユーザーを作成する。同時作成の競合は既存ユーザーとして吸収する。
func (s *Service) createUser(ctx context.Context, claim *identity.Claim, displayName *string) (*model.User, bool, error) {
	user, inserted, err := s.users.Create(ctx, model.NewUser{
		ExternalID:  claim.SubjectID,
		Email:       claim.Email,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, false, s.storageError(ctx, "create", err)
	}

	if inserted {
		s.metrics.RecordUserCreated()
		slog.Info("new user created",
			slog.String("user_id", user.ID),
			slog.String("external_id", user.ExternalID),
		)
	} else {
		s.metrics.RecordDuplicateAbsorbed()
		slog.Info("concurrent create absorbed",
			slog.String("user_id", user.ID),
			slog.String("external_id", user.ExternalID),
		)
	}
	return user, inserted, nil
}

// issue はユーザーのセッションを発行する。
// 書き込みが確定した後はctxが期限切れでも発行する。期限の判定はリポジトリの書き込み前に行う。
func (s *Service) issue(user *model.User, created bool) (*Result, error) {
	pair, err := s.tokens.IssuePair(session.Payload{UserID: user.ID, Email: user.Email})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	return &Result{User: user, Session: pair, Created: created}, nil
}

// storageError はリポジトリのエラーをAPIErrorに変換する。
// ctx由来のエラーは TIMEOUT、メール重複は EMAIL_IN_USE、それ以外は STORAGE_UNAVAILABLE。
func (s *Service) storageError(ctx context.Context, op string, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(err, repository.ErrEmailConflict) {
		return model.NewEmailInUseError()
	}
	if isContextError(ctx, err) {
		slog.Warn("storage operation timed out",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return model.NewTimeoutError(err)
	}

	slog.Error("storage operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return model.NewStorageUnavailableError(err)
}

func (s *Service) recordOutcome(op string, err error) {
	if err == nil {
		s.metrics.RecordAuthOutcome(op, metrics.OutcomeOK)
		return
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		s.metrics.RecordAuthOutcome(op, apiErr.Code)
		return
	}
	s.metrics.RecordAuthOutcome(op, "INTERNAL")
}

func isContextError(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		ctx.Err() != nil
}

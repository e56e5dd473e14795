// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/polylearn/internal/model"
)

// ErrEmailConflict はメールアドレスが別の外部IDのユーザーで使用済みの場合に返る。
var ErrEmailConflict = errors.New("email already registered to another identity")

// UserRepository はユーザーデータの永続化インターフェース。
// 実装は複数goroutineから同時に呼び出せる。同一性の保証はストアの一意制約に依存する。
type UserRepository interface {
	// FindByExternalID は外部IdPのUIDでユーザーを取得する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Create はユーザーを作成する。
	// 同じ外部IDのユーザーが同時に作成された場合は一意制約違反を吸収し、
	// 先に確定した行を inserted=false で返す。
	// メールアドレスのみが別ユーザーと衝突した場合は ErrEmailConflict を返す。
	Create(ctx context.Context, input model.NewUser) (user *model.User, inserted bool, err error)

	// UpdateFields はnilでないフィールドのみを上書きし、updated_atを更新する。
	// 見つからない場合はnilを返す。
	UpdateFields(ctx context.Context, key model.UserKey, update model.ProfileUpdate) (*model.User, error)

	// Exists は外部IDのユーザーが存在するかを返す。
	Exists(ctx context.Context, externalID string) (bool, error)

	// ApplyActivity はtodayのアクティビティをストリークに反映する。
	// 読み取りから書き込みまでを行ロックで直列化し、同日の並行呼び出しで二重加算しない。
	// 見つからない場合はnilを返す。
	ApplyActivity(ctx context.Context, externalID string, today time.Time) (*model.User, error)
}

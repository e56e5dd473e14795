package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/polylearn/internal/middleware"
	"github.com/hitoshi/polylearn/internal/model"
	"github.com/hitoshi/polylearn/internal/session"
)

// maxBodyBytes はリクエストボディの上限。
const maxBodyBytes = 64 << 10

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID                    string     `json:"id"`
	ExternalID            string     `json:"externalId"`
	Email                 string     `json:"email"`
	DisplayName           *string    `json:"displayName"`
	Avatar                *string    `json:"avatar"`
	PhotoURL              *string    `json:"photoUrl"`
	LearningLanguage      *string    `json:"learningLanguage"`
	StreakDays            int        `json:"streakDays"`
	LastActivityDate      *string    `json:"lastActivityDate"`
	SubscriptionTier      string     `json:"subscriptionTier"`
	SubscriptionExpiresAt *time.Time `json:"subscriptionExpiresAt"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// sessionResponse はセッショントークンのAPIレスポンス。
type sessionResponse struct {
	TokenType        string    `json:"tokenType"`
	AccessToken      string    `json:"accessToken"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// authResponse は認証操作のAPIレスポンス。
type authResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
	Created bool            `json:"created"`
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
// 最終アクティビティ日は YYYY-MM-DD 形式で返す。
func toUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:                    u.ID,
		ExternalID:            u.ExternalID,
		Email:                 u.Email,
		DisplayName:           u.DisplayName,
		Avatar:                u.Avatar,
		PhotoURL:              u.PhotoURL,
		LearningLanguage:      u.LearningLanguage,
		StreakDays:            u.StreakDays,
		SubscriptionTier:      string(u.SubscriptionTier),
		SubscriptionExpiresAt: u.SubscriptionExpiresAt,
		CreatedAt:             u.CreatedAt,
		UpdatedAt:             u.UpdatedAt,
	}
	if u.LastActivityDate != nil {
		d := u.LastActivityDate.Format(time.DateOnly)
		resp.LastActivityDate = &d
	}
	return resp
}

func toSessionResponse(p *session.Pair) sessionResponse {
	return sessionResponse{
		TokenType:        "Bearer",
		AccessToken:      p.Access.Token,
		ExpiresAt:        p.Access.ExpiresAt,
		RefreshToken:     p.Refresh.Token,
		RefreshExpiresAt: p.Refresh.ExpiresAt,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSONBody はリクエストボディをvにデコードする。
// optionalがtrueの場合、空のボディはエラーにしない。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any, optional bool) *model.APIError {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return nil
	}
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
		Err:      err,
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if statusCode >= http.StatusInternalServerError {
			slog.Error("service error",
				slog.String("code", apiErr.Code),
				slog.String("error", err.Error()),
			)
		}
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidAssertion, model.ErrCodeAssertionExpired,
		model.ErrCodeTokenInvalid, model.ErrCodeTokenExpired:
		return http.StatusUnauthorized
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailInUse:
		return http.StatusConflict
	case model.ErrCodeValidationFailed, "INVALID_REQUEST":
		return http.StatusBadRequest
	case model.ErrCodeStorageUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// unauthorizedError はコンテキストに認証情報がない場合のエラーを返す。
func unauthorizedError() *model.APIError {
	return &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

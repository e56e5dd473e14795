// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/polylearn/internal/auth"
	"github.com/hitoshi/polylearn/internal/middleware"
	"github.com/hitoshi/polylearn/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.Result, error)
	Login(ctx context.Context, req auth.LoginRequest) (*auth.Result, error)
	Refresh(ctx context.Context, req auth.RefreshRequest) (*auth.Result, error)
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// registerRequest は登録リクエストのボディ。ボディ自体を省略してもよい。
type registerRequest struct {
	DisplayName *string `json:"displayName"`
}

// refreshRequest はセッション更新リクエストのボディ。
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Register はIDトークンでユーザーを登録する。
// POST /api/v1/auth/register
// 新規作成時は201、登録済みの場合は200を返す。
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	assertion, ok := assertionFromRequest(w, r)
	if !ok {
		return
	}

	var body registerRequest
	if apiErr := decodeJSONBody(w, r, &body, true); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.service.Register(r.Context(), auth.RegisterRequest{
		Assertion:   assertion,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toAuthResponse(result))
}

// Login はIDトークンでログインする。未登録の場合は自動で登録する。
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	assertion, ok := assertionFromRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.Login(r.Context(), auth.LoginRequest{Assertion: assertion})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

// Refresh はリフレッシュトークンで新しいセッションを発行する。
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if apiErr := decodeJSONBody(w, r, &body, false); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.service.Refresh(r.Context(), auth.RefreshRequest{RefreshToken: body.RefreshToken})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

// assertionFromRequest はAuthorizationヘッダーからIDトークンを取り出す。
// 取り出せない場合は401を書き込んでfalseを返す。
func assertionFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	assertion := middleware.BearerToken(r)
	if assertion == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidAssertionError(errors.New("missing bearer assertion")))
		return "", false
	}
	return assertion, true
}

func toAuthResponse(result *auth.Result) authResponse {
	return authResponse{
		User:    toUserResponse(result.User),
		Session: toSessionResponse(result.Session),
		Created: result.Created,
	}
}

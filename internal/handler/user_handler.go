package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/polylearn/internal/middleware"
	"github.com/hitoshi/polylearn/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, key model.UserKey) (*model.User, error)
	// UpdateProfile は指定されたフィールドのみを更新する。
	UpdateProfile(ctx context.Context, key model.UserKey, update model.ProfileUpdate) (*model.User, error)
}

// UserHandler はプロフィール管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
// 省略またはnullのフィールドは変更しない。
type updateProfileRequest struct {
	DisplayName      *string `json:"displayName"`
	Avatar           *string `json:"avatar"`
	LearningLanguage *string `json:"learningLanguage"`
	PhotoURL         *string `json:"photoUrl"`
}

// GetProfile はログインユーザーのプロフィールを返す。
// GET /api/v1/user/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	user, err := h.service.GetProfile(r.Context(), model.ByID(userID))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// UpdateProfile はログインユーザーのプロフィールを部分更新する。
// PUT /api/v1/user/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	var req updateProfileRequest
	if apiErr := decodeJSONBody(w, r, &req, false); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), model.ByID(userID), model.ProfileUpdate{
		DisplayName:      req.DisplayName,
		Avatar:           req.Avatar,
		LearningLanguage: req.LearningLanguage,
		PhotoURL:         req.PhotoURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

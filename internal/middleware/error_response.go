package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hitoshi/polylearn/internal/model"
)

// bearerRealm はWWW-Authenticateヘッダーのrealm。
const bearerRealm = "polylearn"

// storageRetryAfter はストア障害時にクライアントへ返す再試行までの秒数。
const storageRetryAfter = 5

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// 原因エラー（Err）はレスポンスに含めない。
//
// 401にはRFC 6750のWWW-Authenticateを、ストア障害の503にはRetry-Afterを付与する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	switch statusCode {
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", bearerChallenge(apiErr.Code))
	case http.StatusServiceUnavailable:
		if apiErr.Code == model.ErrCodeStorageUnavailable {
			w.Header().Set("Retry-After", strconv.Itoa(storageRetryAfter))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// bearerChallenge はエラーコードに応じたBearerチャレンジを返す。
// 期限切れはerror_descriptionで区別し、クライアントが更新か再ログインかを選べるようにする。
func bearerChallenge(code string) string {
	challenge := `Bearer realm="` + bearerRealm + `", error="invalid_token"`
	switch code {
	case model.ErrCodeTokenExpired:
		challenge += `, error_description="session expired"`
	case model.ErrCodeAssertionExpired:
		challenge += `, error_description="identity assertion expired"`
	}
	return challenge
}

package errs

import "net/http"

const (
	ServerInternalError = 500
	ArgsError           = 1001
	RecordNotFoundError = 1002
	RecordExistsError   = 1003
	StoreError          = 1004

	TokenError          = 1500
	TokenExpiredError   = 1501
	TokenInvalidError   = 1502
	TokenMalformedError = 1503
	UserNotFoundError   = 1504
	PasswordError       = 1505
)

var (
	ErrInternalServer = NewCodeError(ServerInternalError, "internal server error")
	ErrArgs           = NewCodeError(ArgsError, "invalid arguments")
	ErrRecordNotFound = NewCodeError(RecordNotFoundError, "record not found")
	ErrRecordIsExist  = NewCodeError(RecordExistsError, "record already exists")
	ErrStore          = NewCodeError(StoreError, "store failure")

	ErrToken          = NewCodeError(TokenError, "token error")
	ErrTokenExpired   = NewCodeError(TokenExpiredError, "token expired")
	ErrTokenInvalid   = NewCodeError(TokenInvalidError, "invalid token")
	ErrTokenMalformed = NewCodeError(TokenMalformedError, "malformed token")
	ErrUserNotFound   = NewCodeError(UserNotFoundError, "user not found")
	ErrPassword       = NewCodeError(PasswordError, "wrong password")
)

func init() {
	// every token kind is also a generic token error
	_ = DefaultCodeRelation.Add(TokenError, TokenExpiredError)
	_ = DefaultCodeRelation.Add(TokenError, TokenInvalidError)
	_ = DefaultCodeRelation.Add(TokenError, TokenMalformedError)
}

// HTTPStatus maps a code to the status the HTTP layer answers with.
func HTTPStatus(code int) int {
	switch {
	case code == ArgsError, code == RecordExistsError:
		return http.StatusBadRequest
	case code == RecordNotFoundError, code == UserNotFoundError:
		return http.StatusNotFound
	case code >= TokenError && code <= PasswordError:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

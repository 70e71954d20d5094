package modsdk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
)

var (
	ErrNoServerURL      = errors.New("sdk: server url missing")
	ErrInvalidServerURL = errors.New("sdk: invalid server url")
	ErrBadFolderList    = errors.New("sdk: malformed folder list")
	ErrBadUpdateInfo    = errors.New("sdk: malformed update info")
)

const (
	CodeNotFound      = "E_NOT_FOUND"       // folder, file or archive does not exist
	CodeAccessDenied  = "E_ACCESS_DENIED"   // server refused the request
	CodeRateLimited   = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError = "E_INTERNAL_ERROR"  // server side failure
	CodeUnknownError  = "E_UNKNOWN_ERR"     // any other unexpected status
)

type SDKError interface {
	error
	ErrorCode() string
	ErrorMessage() string
}

// APIError is returned whenever the server answers with an unexpected status.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"error"`
	StatusCode int    `json:"-"`
}

func NewAPIError(statusCode int, message string) *APIError {
	return &APIError{
		Code:       codeForStatus(statusCode),
		Message:    message,
		StatusCode: statusCode,
	}
}

func (e *APIError) ErrorCode() string    { return e.Code }
func (e *APIError) ErrorMessage() string { return e.Message }

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - HTTP %d %s", e.Code, e.StatusCode, e.Message)
}

var _ SDKError = (*APIError)(nil)

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodeAccessDenied
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return CodeInternalError
	default:
		return CodeUnknownError
	}
}

// handleAPIError converts transport failures and any status outside ok into errors.
func handleAPIError(resp *req.Response, requestErr error, operation string, ok ...int) error {
	if requestErr != nil {
		return fmt.Errorf("sdk: %s: %w", operation, requestErr)
	}

	if len(ok) == 0 {
		ok = []int{http.StatusOK}
	}
	for _, status := range ok {
		if resp.StatusCode == status {
			return nil
		}
	}

	return fmt.Errorf("sdk: %s: %w", operation, NewAPIError(resp.StatusCode, http.StatusText(resp.StatusCode)))
}

// IsNotFound reports whether err carries a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

package llm

import (
	"errors"
	"net/http"

	openai "github.com/meguminnnnnnnnn/go-openai"
	"google.golang.org/api/googleapi"
)

// Provider error taxonomy. These are the only failure classes surfaced to the
// caller; anything else downstream of a successful answer degrades silently.
var (
	// ErrNoAPIKey means no credentials were configured or supplied.
	ErrNoAPIKey = errors.New("no API key configured")
	// ErrInvalidAPIKey means the provider rejected the credentials.
	ErrInvalidAPIKey = errors.New("invalid API key")
	// ErrAPILimit means the provider rate-limited the call or rejected an
	// oversized payload.
	ErrAPILimit = errors.New("API limit reached")
)

// Error codes surfaced in HTTP error responses.
const (
	CodeNoAPIKey        = "NO_API_KEY"
	CodeInvalidAPIKey   = "INVALID_API_KEY"
	CodeAPILimitReached = "API_LIMIT_REACHED"
)

// MapProviderError normalizes raw provider errors into the taxonomy. Errors
// outside the taxonomy are returned unchanged.
func MapProviderError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrNoAPIKey) || errors.Is(err, ErrInvalidAPIKey) || errors.Is(err, ErrAPILimit) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return mapStatusCode(gerr.Code, err)
	}

	var oerr *openai.APIError
	if errors.As(err, &oerr) {
		return mapStatusCode(oerr.HTTPStatusCode, err)
	}

	return err
}

func mapStatusCode(code int, err error) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrInvalidAPIKey
	case http.StatusTooManyRequests, http.StatusRequestEntityTooLarge:
		return ErrAPILimit
	default:
		return err
	}
}

// ErrorCode returns the wire error code for a taxonomy error, or an empty
// string when the error is not part of the taxonomy.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNoAPIKey):
		return CodeNoAPIKey
	case errors.Is(err, ErrInvalidAPIKey):
		return CodeInvalidAPIKey
	case errors.Is(err, ErrAPILimit):
		return CodeAPILimitReached
	default:
		return ""
	}
}

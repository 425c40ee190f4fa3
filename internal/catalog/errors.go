package catalog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"sortify/internal/core"
)

// normalizeError maps raw transport and API failures onto the core taxonomy
// so callers can branch on Unauthorized / RateLimited / Timeout / Upstream
// without knowing the wire library.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", core.ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", core.ErrTimeout, err)
	}

	// A failed token refresh means the stored grant is gone, same UX as 401.
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: token refresh failed", core.ErrUnauthorized)
	}

	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", core.ErrUnauthorized, apiErr.Message)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", core.ErrRateLimited, apiErr.Message)
		default:
			return &core.UpstreamError{Status: apiErr.Status, Body: apiErr.Message}
		}
	}

	return err
}

package interfaces

import (
	"context"
	"io"
	"net/http"
)

// -----------------------------------------------------------------------------
// INetworkManager defines the contract for rate-limited HTTP requests.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// -----------------------------------------------------------------------------

	// Do sends one request. It never retries; the caller owns the response body.
	Do(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error)

	// -----------------------------------------------------------------------------

	// Stream sends one request on a client without a total timeout, for
	// long-lived responses such as server-sent events.
	Stream(ctx context.Context, url string, headers map[string]string) (*http.Response, error)
}

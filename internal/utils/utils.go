package utils

import (
	"context"
	"io"
	"net/http"

	"github.com/stellar/go-stellar-sdk/support/log"
)

// PointOf returns a pointer to the value
func PointOf[T any](value T) *T {
	return &value
}

// DeferredClose is a function that closes an `io.Closer` resource and logs an error if it fails.
func DeferredClose(ctx context.Context, closer io.Closer, errMsg string) {
	if err := closer.Close(); err != nil {
		if errMsg == "" {
			errMsg = "closing resource"
		}
		log.Ctx(ctx).Errorf("%s: %v", errMsg, err)
	}
}

// HTTPClient abstracts the stdlib HTTP client so transports can be swapped in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

package network

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryClient honors Request.MaxRetries around another Doer. Each attempt
// is a full single pass through the wrapped client.
type RetryClient struct {
	next Doer
	base time.Duration
}

// NewRetryClient wraps next with exponential backoff starting at base.
func NewRetryClient(next Doer, base time.Duration) *RetryClient {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return &RetryClient{next: next, base: base}
}

func (r *RetryClient) Do(ctx context.Context, req Request) (*Response, error) {
	if req.MaxRetries <= 0 {
		return r.next.Do(ctx, req)
	}

	var resp *Response
	backoff := retry.WithMaxRetries(uint64(req.MaxRetries), retry.NewExponential(r.base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := r.next.Do(ctx, req)
		if err != nil {
			if Retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		resp = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Retryable reports whether another attempt could succeed: connection
// failures, 429 and 5xx. Cloudflare challenges never clear on retry.
func Retryable(err error) bool {
	var cf *CloudflareError
	if errors.As(err, &cf) {
		return false
	}
	var ee *EmptyResponseError
	if errors.As(err, &ee) {
		return true
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Status == 429 || ne.Status >= 500
	}
	return false
}

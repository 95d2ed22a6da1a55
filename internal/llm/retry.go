package llm

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retrying retries transient completion failures (see Retryable) with
// exponential backoff. Other errors are returned immediately.
type Retrying struct {
	next       Completer
	maxRetries uint64
	base       time.Duration
}

func NewRetrying(next Completer, maxRetries uint64, base time.Duration) *Retrying {
	if base <= 0 {
		base = 300 * time.Millisecond
	}
	return &Retrying{next: next, maxRetries: maxRetries, base: base}
}

func (r *Retrying) Info() Info { return Describe(r.next) }

func (r *Retrying) Complete(ctx context.Context, prompt string, opts Options) (Completion, error) {
	var out Completion
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := r.next.Complete(ctx, prompt, opts)
		if err != nil {
			if Retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = c
		return nil
	})
	return out, err
}

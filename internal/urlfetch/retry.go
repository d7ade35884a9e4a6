package urlfetch

import (
	"context"
	"math"
	"time"
)

// RetryPolicy mirrors the §4.4 retry budgets: a download-attempt budget and
// a separate, typically higher, connect-attempt budget, with exponential
// backoff between attempts.
type RetryPolicy struct {
	Retries        int
	ConnectRetries int
	Interval       time.Duration
}

// FetchWithRetry retries Fetch under policy, treating KindNotFound and
// KindFatal as immediately terminal (no budget applies) and splitting
// KindConnect from other failures onto their own retry counter, exactly as
// the article scheduler does for NNTP errors.
func (c *Client) FetchWithRetry(ctx context.Context, target string, policy RetryPolicy) (*Result, error) {
	retries := policy.Retries
	connectRetries := policy.ConnectRetries

	for {
		result, err := c.Fetch(ctx, target)
		if err == nil {
			return result, nil
		}

		fe, ok := err.(*Error)
		if !ok {
			return nil, err
		}

		switch fe.Kind {
		case KindNotFound, KindFatal:
			return nil, err
		case KindConnect:
			connectRetries--
			if connectRetries <= 0 {
				return nil, err
			}
			if !sleep(ctx, retryBackoff(policy.Interval, connectRetries)) {
				return nil, ctx.Err()
			}
		default:
			retries--
			if retries <= 0 {
				return nil, err
			}
			if !sleep(ctx, retryBackoff(policy.Interval, retries)) {
				return nil, ctx.Err()
			}
		}
	}
}

func retryBackoff(base time.Duration, remaining int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	exp := 5 - remaining
	if exp < 0 {
		exp = 0
	}
	d := time.Duration(math.Pow(2, float64(exp))) * base
	if d > 2*time.Minute {
		d = 2 * time.Minute
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

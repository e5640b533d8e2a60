package videoapi

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// RetryPolicy 固定次数、线性递增的重试间隔
type RetryPolicy struct {
	Attempts int
	Step     time.Duration
}

// linearBackOff 第 n 次重试前等待 n*step
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

// retry 只对 ErrTransient 重试，其余错误立即返回
func (p RetryPolicy) retry(ctx context.Context, op string, fn func() error) error {
	retries := p.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{step: p.Step}, uint64(retries)), ctx)

	return backoff.RetryNotify(func() error {
		err := fn()
		if err == nil || errors.Is(err, ErrTransient) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, wait time.Duration) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("op", op).Dur("wait", wait).Msg("transient backend error, retrying")
	})
}

package modsdk

import (
	"errors"
	"io"
	"sync/atomic"
	"time"
)

var ErrReadTimeout = errors.New("sdk: no data received within idle read timeout")

// idleTimeoutBody closes the underlying body once no read has completed for
// timeout, which unblocks a pending Read with ErrReadTimeout.
type idleTimeoutBody struct {
	body    io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newIdleTimeoutBody(body io.ReadCloser, timeout time.Duration) io.ReadCloser {
	if timeout <= 0 {
		return body
	}

	b := &idleTimeoutBody{body: body, timeout: timeout}
	b.timer = time.AfterFunc(timeout, func() {
		b.expired.Store(true)
		body.Close()
	})
	return b
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if b.expired.Load() {
		return n, ErrReadTimeout
	}
	b.timer.Reset(b.timeout)
	return n, err
}

func (b *idleTimeoutBody) Close() error {
	b.timer.Stop()
	return b.body.Close()
}

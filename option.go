package bando

import (
	"time"

	"github.com/vitwit/bando/logger"
	"github.com/vitwit/bando/metrics"
)

type Option func(*Bando)

func WithLogger(l logger.Logger) Option {
	return func(b *Bando) {
		if l != nil {
			b.logger = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(b *Bando) {
		if r != nil {
			b.metrics = r
		}
	}
}

// WithTimeout bounds the pre-broadcast RPC checks.
func WithTimeout(t time.Duration) Option {
	return func(b *Bando) {
		b.timeout = t
	}
}

// WithConfirmationTimeout bounds the wait for a broadcast transaction's
// final state.
func WithConfirmationTimeout(t time.Duration) Option {
	return func(b *Bando) {
		b.confirmationTimeout = t
	}
}

func WithReceiptTimeout(t time.Duration) Option {
	return func(b *Bando) {
		b.receiptTimeout = t
	}
}

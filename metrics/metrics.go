package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Event names recorded by the purchase flow.
const (
	EventQuoteRequested        = "quote_requested"
	EventQuoteFailed           = "quote_failed"
	EventTxSubmitted           = "tx_submitted"
	EventTxSubmitFailed        = "tx_submit_failed"
	EventTxConfirmed           = "tx_confirmed"
	EventTxReverted            = "tx_reverted"
	EventTxConfirmationTimeout = "tx_confirmation_timeout"
	EventReceiptSent           = "receipt_sent"
	EventReceiptFailed         = "receipt_failed"
	EventCatalogCacheHit       = "catalog_cache_hit"
)

// Operation names observed for latency.
const (
	OpQuote        = "quote"
	OpSubmit       = "submit"
	OpConfirmation = "confirmation"
	OpReceipt      = "receipt"
	OpPurchase     = "purchase"
)

// Since records the elapsed time since start for op.
func Since(r Recorder, op string, start time.Time, labels map[string]string) {
	r.ObserveLatency(op, time.Since(start), labels)
}

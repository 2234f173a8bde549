package clients

import (
	"context"

	"github.com/vitwit/bando/types"
)

// Client submits a quote's transaction request on one network and waits for
// its outcome.
type Client interface {
	SendTransaction(ctx context.Context, req *types.TransactionRequest) (string, error)
	Confirm(ctx context.Context, hash string) (*types.TransactionOutcome, error)
	Address() string
	GetNetwork() types.Network
	Close()
}

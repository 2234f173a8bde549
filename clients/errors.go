package clients

import (
	"strings"

	"github.com/vitwit/bando/types"
)

const (
	HintInsufficientFunds  = "the wallet cannot cover the payment plus network fees; top up the native balance or the paid token"
	HintInvalidAccountData = "a token account is missing or owned by someone else; make sure the wallet holds the selected token"
)

// SubmissionDetails is attached to SUBMISSION_ERROR and ONCHAIN_REVERT errors
// raised by Solana when the node returned program logs.
type SubmissionDetails struct {
	Logs  []string `json:"logs,omitempty"`
	Hints []string `json:"hints,omitempty"`
}

// hintsFor matches known failure substrings in the error message and logs.
func hintsFor(message string, logs []string) []string {
	text := strings.ToLower(message + "\n" + strings.Join(logs, "\n"))

	var hints []string
	if strings.Contains(text, "insufficient funds") || strings.Contains(text, "insufficient lamports") {
		hints = append(hints, HintInsufficientFunds)
	}
	if strings.Contains(text, "invalidaccountdata") || strings.Contains(text, "invalid account data") {
		hints = append(hints, HintInvalidAccountData)
	}
	return hints
}

func submissionError(msg string, err error) *types.BandoError {
	return types.NewError(types.ErrSubmission, types.StageSubmission, msg, err)
}

func revertError(hash string, msg string, data any) *types.BandoError {
	e := types.NewError(types.ErrOnChainRevert, types.StageConfirmation, msg, nil).WithIDs("", hash)
	e.Data = data
	return e
}

func timeoutError(hash string, err error) *types.BandoError {
	return types.NewError(types.ErrConfirmationTimeout, types.StageConfirmation,
		"no final state before the confirmation deadline; check the transaction before resubmitting", err).WithIDs("", hash)
}

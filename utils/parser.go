package utils

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/bando/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

// ValidateStruct validates v using its struct tags.
func ValidateStruct(v any) error {
	return validate.Struct(v)
}

// ParseQuote parses a /quotes/ response body. Responses wrapped in a
// {"data": {...}} envelope are unwrapped. A body whose error field is set,
// on the envelope or on the quote itself, is reported as a quote error.
func ParseQuote(data []byte) (*types.Quote, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && HasAPIError(env.Error) {
		return nil, quoteRejected(env.Message, env.Error)
	}

	var q types.Quote
	if err := json.Unmarshal(env.body(data), &q); err != nil {
		return nil, types.NewError(types.ErrQuote, types.StageQuote,
			fmt.Sprintf("failed to parse quote: %v", err), err)
	}

	if HasAPIError(q.Error) {
		return nil, quoteRejected(q.Message, q.Error)
	}

	if err := validate.Struct(&q); err != nil {
		return nil, types.NewError(types.ErrQuote, types.StageQuote,
			fmt.Sprintf("validation failed: %v", err), err)
	}

	return &q, nil
}

func quoteRejected(msg string, apiErr any) *types.BandoError {
	if msg == "" {
		msg = fmt.Sprint(apiErr)
	}
	return types.NewError(types.ErrQuote, types.StageQuote,
		fmt.Sprintf("quote rejected: %s", msg), nil)
}

// ParseReceipt parses a wallet transaction response body.
func ParseReceipt(data []byte) (*types.Receipt, error) {
	var r types.Receipt
	if err := json.Unmarshal(unwrapData(data), &r); err != nil {
		return nil, fmt.Errorf("failed to parse receipt: %w", err)
	}
	return &r, nil
}

// HasAPIError reports whether an API error field carries an error. The API
// uses strings, booleans and objects for it.
func HasAPIError(v any) bool {
	switch e := v.(type) {
	case nil:
		return false
	case bool:
		return e
	case string:
		return e != ""
	case map[string]any:
		return len(e) > 0
	default:
		return true
	}
}

// APIMessage extracts a human readable message from an error response body.
func APIMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return string(bytes.TrimSpace(data))
	}
	switch {
	case body.Message != "":
		return body.Message
	case body.Detail != "":
		return body.Detail
	case HasAPIError(body.Error):
		return fmt.Sprint(body.Error)
	}
	return string(bytes.TrimSpace(data))
}

// envelope is the outer shape of API responses.
type envelope struct {
	Error   any             `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// body returns the "data" object when there is one, or raw itself.
func (e envelope) body(raw []byte) []byte {
	trimmed := bytes.TrimSpace(e.Data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return trimmed
	}
	return raw
}

// unwrapData returns the value of a top level "data" object, or data itself.
func unwrapData(data []byte) []byte {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return data
	}
	return env.body(data)
}

// SerializePaymentReceipt converts a receipt request to JSON
func SerializePaymentReceipt(req *types.PaymentReceiptRequest) ([]byte, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid payment receipt: %w", err)
	}
	return json.Marshal(req)
}

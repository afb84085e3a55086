package exchange

import (
	"strings"

	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
)

// ErrMetadataUnavailable is returned when the instrument or its filters are
// missing from exchange info. Fatal at startup.
var ErrMetadataUnavailable = errors.New("instrument metadata unavailable")

const (
	codeNewOrderRejected = -2010
	codeCancelRejected   = -2011
	codeUnknownOrder     = -2013
)

// IsExchangeRejection reports whether the error is an exchange-level rejection
// as opposed to a transport or auth failure.
func IsExchangeRejection(err error) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr)
}

// IsInsufficientBalance reports whether the exchange rejected an order for
// lack of funds. This condition cannot recover without external action, so
// callers treat it as fatal rather than retrying.
func IsInsufficientBalance(err error) bool {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == codeNewOrderRejected &&
		strings.Contains(strings.ToLower(apiErr.Message), "insufficient balance")
}

// IsUnknownOrder reports whether a cancel or status query referenced an order
// the exchange no longer knows about. Harmless during shutdown.
func IsUnknownOrder(err error) bool {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == codeCancelRejected || apiErr.Code == codeUnknownOrder
}

package binance

import (
	"errors"
	"fmt"
)

// ErrPriceUnavailable is returned by GetPrice when the exchange does not
// track the requested symbol at query time.
var ErrPriceUnavailable = errors.New("price unavailable for symbol")

// ConnectivityError wraps transient network failures. The trading loop
// reacts to it with exponential backoff rather than treating it as fatal.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity failure during %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// OrderRejectedError is an exchange-side rejection of an order request,
// e.g. quantity below the minimum notional. Position state must be left
// unchanged by the caller.
type OrderRejectedError struct {
	Symbol  string
	Side    string
	Code    int
	Message string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order rejected for %s %s: code=%d msg=%s", e.Side, e.Symbol, e.Code, e.Message)
}

// apiError is the JSON error body the exchange returns on non-2xx responses.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

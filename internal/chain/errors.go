package chain

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// Provider messages that mean "ask for less" or "ask later".
var transientMessages = []string{
	"timeout",
	"timed out",
	"rate limit",
	"too many requests",
	"limit exceeded",
	"query returned more than",
	"block range",
	"response size",
	"connection reset",
	"connection refused",
	"eof",
	"service unavailable",
	"bad gateway",
}

// IsTransient reports whether err is a timeout or RPC/HTTP failure worth
// retrying with a smaller window. Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return true
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		// Execution reverted is deterministic.
		if rpcErr.ErrorCode() == 3 {
			return false
		}
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range transientMessages {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

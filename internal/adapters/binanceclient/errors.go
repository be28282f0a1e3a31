package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cryptoKline/internal/ports"

	"github.com/adshao/go-binance/v2/common"
)

var bannedUntilRe = regexp.MustCompile(`banned until (\d+)`)

// now is replaced in tests.
var now = time.Now

// classify maps a failed call to either *ports.RateLimitError or *ports.FatalError.
func classify(operation string, statusCode int, retryAfter time.Duration, err error) error {
	var apiErr *common.APIError
	hasAPIErr := errors.As(err, &apiErr)

	switch statusCode {
	case http.StatusTooManyRequests:
		return rateLimited(ports.TierThrottled, statusCode, apiErr, retryAfter, err)
	case http.StatusTeapot:
		return rateLimited(ports.TierBanned, statusCode, apiErr, retryAfter, err)
	}

	if hasAPIErr {
		switch apiErr.Code {
		case -1003: // Too many requests; the message says so when the IP is banned
			tier := ports.TierThrottled
			if strings.Contains(strings.ToLower(apiErr.Message), "banned") {
				tier = ports.TierBanned
			}
			return rateLimited(tier, statusCode, apiErr, retryAfter, err)
		case -1015: // Too many new orders
			return rateLimited(ports.TierThrottled, statusCode, apiErr, retryAfter, err)
		}
	}

	var mapped error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		mapped = ports.ErrTimeout
	case errors.Is(err, context.Canceled):
		mapped = ports.ErrContextCanceled
	case statusCode >= http.StatusInternalServerError:
		mapped = ports.ErrExchangeUnavailable
	case hasAPIErr:
		mapped = mapAPICode(apiErr.Code)
	case isNetworkError(err):
		mapped = ports.ErrConnectionFailed
	default:
		mapped = ports.ErrUnknown
	}
	fatal := &ports.FatalError{Op: operation, Err: fmt.Errorf("%w: %w", mapped, err)}
	if hasAPIErr {
		fatal.Code = apiErr.Code
	}
	return fatal
}

func mapAPICode(code int64) error {
	switch code {
	case -1121: // Invalid symbol
		return ports.ErrUnknownSymbol
	case -1021: // Timestamp for this request is outside of the recvWindow
		return ports.ErrTimeout
	case -1022, -2014, -2015: // Signature or API key rejected
		return ports.ErrAuthenticationFailed
	case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1125, -1127, -1128, -1130:
		return ports.ErrInvalidRequest
	case -1000, -1001, -1006, -1007, -1008: // Internal errors, disconnects and timeouts on the exchange side
		return ports.ErrExchangeUnavailable
	default:
		return ports.ErrUnknown
	}
}

func rateLimited(tier ports.BackoffTier, statusCode int, apiErr *common.APIError, retryAfter time.Duration, err error) *ports.RateLimitError {
	rl := &ports.RateLimitError{
		Tier:       tier,
		StatusCode: statusCode,
		RetryAfter: retryAfter,
		Err:        err,
	}
	if apiErr != nil {
		rl.Code = apiErr.Code
		if until := parseBannedUntil(apiErr.Message); !until.IsZero() {
			if wait := until.Sub(now()); wait > rl.RetryAfter {
				rl.RetryAfter = wait
			}
		}
	}
	return rl
}

// parseBannedUntil extracts the unban timestamp from messages such as
// "Way too many requests; IP banned until 1700000000000."
func parseBannedUntil(msg string) time.Time {
	m := bannedUntilRe.FindStringSubmatch(msg)
	if len(m) != 2 {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "no such host")
}

// Package client issues resilient HTTP calls against the shop API, handling
// rate limiting, transient server errors, and silent token expiry.
package client

import (
	"fmt"
	"time"
)

// Kind classifies the result of one logical API call.
type Kind int

const (
	// KindSuccess carries a decoded-ready JSON payload.
	KindSuccess Kind = iota
	// KindRateLimited means the server returned 429; the executor retries
	// internally, so callers only see this after the attempt ceiling.
	KindRateLimited
	// KindServerError means a 5xx persisted past the attempt ceiling.
	KindServerError
	// KindAuthExpired means the credential was rejected and the single
	// permitted re-authentication did not resolve it.
	KindAuthExpired
	// KindRestricted means the account lacks access to this product.
	// This is an expected business outcome, not an error.
	KindRestricted
	// KindClientError is any other non-retryable non-2xx status.
	KindClientError
	// KindNetworkError is a transport-level failure.
	KindNetworkError
	// KindMalformed means a 2xx response whose content type was not JSON,
	// typically an HTML error page served with a success status.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRateLimited:
		return "rate_limited"
	case KindServerError:
		return "server_error"
	case KindAuthExpired:
		return "auth_expired"
	case KindRestricted:
		return "restricted"
	case KindClientError:
		return "client_error"
	case KindNetworkError:
		return "network_error"
	case KindMalformed:
		return "malformed_response"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the tagged result of one logical API call.
type Outcome struct {
	Kind       Kind
	Status     int           // HTTP status of the last response, 0 on transport failure
	Payload    []byte        // response body, set on Success
	RetryAfter time.Duration // server-directed delay, set on RateLimited
	Err        error         // underlying cause, set on NetworkError
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool { return o.Kind == KindSuccess }

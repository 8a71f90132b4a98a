package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jonathan/shop-harvester/internal/auth"
)

const (
	// MaxAttempts caps the total attempts for one logical call, counting
	// the first send and every retry.
	MaxAttempts = 4

	// BackoffBase and BackoffCap bound the exponential retry delay.
	BackoffBase = 1 * time.Second
	BackoffCap  = 8 * time.Second

	// RestrictedMarker is the phrase the shop embeds in 401/403 bodies when
	// the account simply lacks access to a product, as opposed to holding
	// an expired credential.
	RestrictedMarker = "not authorized to view this product"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Executor issues one logical HTTP call with retry, rate-limit back-off, and
// one-shot re-authentication. Safe for concurrent use.
type Executor struct {
	client  *http.Client
	creds   *auth.Credentials
	limiter *rate.Limiter
	log     *zap.Logger

	// sleep is replaceable in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds an Executor with the given request timeout. The limiter
// is shared across all workers and gates request starts; pass nil to disable
// client-side throttling.
func NewExecutor(timeout time.Duration, creds *auth.Credentials, limiter *rate.Limiter, log *zap.Logger) *Executor {
	return &Executor{
		client:  &http.Client{Timeout: timeout},
		creds:   creds,
		limiter: limiter,
		log:     log,
		sleep:   sleepCtx,
	}
}

// Do performs one logical API call. The returned Outcome is always usable;
// the error return is non-nil only when the context was cancelled mid-call.
func (e *Executor) Do(ctx context.Context, method, url string, body []byte) (Outcome, error) {
	backoff := BackoffBase
	reauthed := false
	var last Outcome

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return Outcome{Kind: KindNetworkError, Err: err}, err
			}
		}

		outcome := e.send(ctx, method, url, body)
		last = outcome

		switch outcome.Kind {
		case KindSuccess, KindRestricted, KindClientError, KindMalformed:
			return outcome, nil

		case KindAuthExpired:
			if reauthed {
				return outcome, nil
			}
			reauthed = true
			e.log.Info("credential rejected, re-authenticating",
				zap.String("url", url), zap.Int("status", outcome.Status))
			if err := e.creds.EnsureRefreshed(ctx); err != nil {
				e.log.Error("re-authentication failed", zap.Error(err))
				return outcome, nil
			}
			// Retry the same call immediately with the refreshed credential.
			continue
		}

		if attempt == MaxAttempts {
			break
		}

		delay := backoff
		if outcome.Kind == KindRateLimited && outcome.RetryAfter > 0 {
			delay = outcome.RetryAfter
		}
		if delay > BackoffCap {
			delay = BackoffCap
		}
		e.log.Warn("transient failure, backing off",
			zap.String("url", url),
			zap.String("outcome", outcome.Kind.String()),
			zap.Int("attempt", attempt),
			zap.Int("status", outcome.Status),
			zap.Duration("delay", delay))
		if err := e.sleep(ctx, delay); err != nil {
			return outcome, err
		}
		backoff = nextBackoff(backoff)
	}

	return last, nil
}

// send performs a single HTTP round trip and classifies the response.
func (e *Executor) send(ctx context.Context, method, url string, body []byte) Outcome {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return Outcome{Kind: KindNetworkError, Err: err}
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h := e.creds.AuthorizationHeader(); h != "" {
		req.Header.Set("Authorization", h)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Outcome{Kind: KindNetworkError, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{Kind: KindNetworkError, Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Outcome{
			Kind:       KindRateLimited,
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if strings.Contains(strings.ToLower(string(payload)), RestrictedMarker) {
			return Outcome{Kind: KindRestricted, Status: resp.StatusCode}
		}
		return Outcome{Kind: KindAuthExpired, Status: resp.StatusCode}

	case resp.StatusCode >= 500 && resp.StatusCode <= 599:
		return Outcome{Kind: KindServerError, Status: resp.StatusCode}

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		ct := resp.Header.Get("Content-Type")
		if !strings.Contains(ct, "application/json") {
			// HTML error pages occasionally ship with a 200 status.
			return Outcome{Kind: KindMalformed, Status: resp.StatusCode}
		}
		return Outcome{Kind: KindSuccess, Status: resp.StatusCode, Payload: payload}

	default:
		return Outcome{Kind: KindClientError, Status: resp.StatusCode}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > BackoffCap {
		d = BackoffCap
	}
	return d
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

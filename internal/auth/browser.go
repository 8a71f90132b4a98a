// Package auth - browser.go drives the shop's login form in a headless
// browser and extracts the bearer token the storefront stores client-side.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// DefaultLoginTimeout bounds the whole login flow, including redirects.
const DefaultLoginTimeout = 90 * time.Second

// tokenPollInterval is how often local storage is checked after sign-on.
const tokenPollInterval = 500 * time.Millisecond

// BrowserLogin authenticates against the shop's login form using chromedp.
// Requires Chrome/Chromium to be installed on the system.
type BrowserLogin struct {
	LoginURL string
	ShopURL  string // storefront base URL, used for the interception fallback
	Username string
	Password string
	Headless bool
	Timeout  time.Duration
	Log      *zap.Logger
}

// Authenticate performs the login flow and returns the bearer token.
// The token is read from the storefront's local storage; if the site did not
// persist it there, a product page is loaded and the Authorization header of
// an outgoing API request is intercepted instead.
func (b *BrowserLogin) Authenticate(ctx context.Context) (string, error) {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultLoginTimeout
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", b.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	// Capture bearer tokens from outgoing requests as a fallback source.
	tokenCh := make(chan string, 1)
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok {
			return
		}
		header, ok := req.Request.Headers["Authorization"].(string)
		if !ok || !strings.HasPrefix(header, "Bearer ") {
			return
		}
		select {
		case tokenCh <- strings.TrimPrefix(header, "Bearer "):
		default:
		}
	})

	b.Log.Info("starting browser login", zap.String("login_url", b.LoginURL), zap.Bool("headless", b.Headless))

	err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(b.LoginURL),
		chromedp.WaitVisible(`#username`, chromedp.ByQuery),
		chromedp.SendKeys(`#username`, b.Username, chromedp.ByQuery),
		chromedp.SendKeys(`#password`, b.Password, chromedp.ByQuery),
		chromedp.Click(`#signOnButton`, chromedp.ByQuery),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("login form submission failed: %w", err)
	}

	// The storefront stores the token in local storage after the redirect.
	deadline := time.Now().Add(timeout / 2)
	for time.Now().Before(deadline) {
		var token string
		err := chromedp.Run(browserCtx,
			chromedp.Evaluate(`window.localStorage.getItem('AccessToken') || ''`, &token),
		)
		if err != nil {
			return "", fmt.Errorf("reading local storage failed: %w", err)
		}
		if token != "" {
			b.Log.Info("bearer token extracted from local storage")
			return token, nil
		}

		select {
		case token := <-tokenCh:
			b.Log.Info("bearer token intercepted from request headers")
			return token, nil
		case <-browserCtx.Done():
			return "", fmt.Errorf("login timed out: %w", browserCtx.Err())
		case <-time.After(tokenPollInterval):
		}
	}

	// Fallback: load a storefront page to trigger authenticated API calls
	// and intercept the Authorization header.
	b.Log.Info("token not found in storage, intercepting network requests")
	if err := chromedp.Run(browserCtx, chromedp.Navigate(b.ShopURL)); err != nil {
		return "", fmt.Errorf("fallback navigation failed: %w", err)
	}

	select {
	case token := <-tokenCh:
		b.Log.Info("bearer token intercepted from request headers")
		return token, nil
	case <-browserCtx.Done():
		return "", fmt.Errorf("login timed out: %w", browserCtx.Err())
	case <-time.After(10 * time.Second):
		return "", fmt.Errorf("failed to extract bearer token after login")
	}
}

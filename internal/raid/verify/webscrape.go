package verify

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// WebScrapeAdapter is the fallback verification adapter for objectives
// with no authenticated read API: it loads target in a headless browser
// and looks for participantRef in the rendered page (e.g. a username
// appearing in a likes/replies list). This is inherently best-effort —
// NotYet is returned on any navigation error so the caller's retry policy
// gets another attempt rather than a hard Rejected.
type WebScrapeAdapter struct {
	browser *rod.Browser
	timeout time.Duration
}

func NewWebScrapeAdapter(browser *rod.Browser) *WebScrapeAdapter {
	return &WebScrapeAdapter{browser: browser, timeout: 10 * time.Second}
}

func (w *WebScrapeAdapter) VerifyAction(ctx context.Context, objectiveType ObjectiveType, target, participantRef string, submittedAt time.Time) (Result, error) {
	page, err := w.browser.Context(ctx).Page(nil)
	if err != nil {
		return Result{Outcome: NotYet}, nil
	}
	defer page.Close()

	if err := page.Timeout(w.timeout).Navigate(target); err != nil {
		return Result{Outcome: NotYet}, nil
	}
	if err := page.Timeout(w.timeout).WaitLoad(); err != nil {
		return Result{Outcome: NotYet}, nil
	}

	html, err := page.HTML()
	if err != nil {
		return Result{Outcome: NotYet}, nil
	}

	if strings.Contains(html, participantRef) {
		return Result{Outcome: Verified}, nil
	}
	return Result{Outcome: NotYet}, nil
}

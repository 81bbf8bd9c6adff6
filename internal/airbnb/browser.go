package airbnb

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"

	appLog "roomcal/internal/log"
)

const defaultBrowserTimeout = 45 * time.Second

// BrowserKeySource discovers the API key by rendering the home page in
// headless Chromium. It is slower than the plain HTTP discovery but gets
// past pages that only embed the key after client-side bootstrapping.
//
// CHROME_PATH selects the browser binary when ExecPath is empty.
type BrowserKeySource struct {
	URL      string
	ExecPath string
	Timeout  time.Duration
}

// APIKey launches Chromium, waits for the document body and extracts the
// key from the rendered HTML.
func (b BrowserKeySource) APIKey(parentCtx context.Context) (string, error) {
	pageURL := b.URL
	if pageURL == "" {
		pageURL = DefaultBaseURL
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = defaultBrowserTimeout
	}
	execPath := b.ExecPath
	if execPath == "" {
		execPath = os.Getenv("CHROME_PATH")
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	opts = append(opts,
		chromedp.Headless,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.UserAgent(defaultUserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, opts...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	defer timeoutCancel()

	appLog.Info("api key discovery via browser", "url", pageURL)

	var html string
	err := chromedp.Run(ctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("browser: chromedp run failed: %w", err)
	}

	return ExtractAPIKeyFromHTML(html)
}

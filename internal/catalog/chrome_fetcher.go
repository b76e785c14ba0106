package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeFetcher loads the storefront source in headless Chrome and evaluates
// an expression that yields the catalog document.
type ChromeFetcher struct {
	URL        string
	Expression string
	ExecPath   string
	Timeout    time.Duration
	// ImagePathPrefix fills documents that do not carry their own.
	ImagePathPrefix string
}

// Fetch drives one browser session per call.
func (f *ChromeFetcher) Fetch(ctx context.Context) (*Document, error) {
	if f.URL == "" {
		return nil, errors.New("catalog source url is not configured")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	if f.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.ExecPath))
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var raw []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(f.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf("JSON.stringify(%s)", f.Expression), &raw),
	)
	if err != nil {
		return nil, fmt.Errorf("load catalog page: %w", err)
	}

	// Evaluate hands back the JSON encoding of the string result.
	var payload string
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode catalog expression: %w", err)
	}
	var doc Document
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if doc.ImagePathPrefix == "" {
		doc.ImagePathPrefix = f.ImagePathPrefix
	}
	return &doc, nil
}

package chrome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/edgecomet/pagerender/internal/common/htmlprocessor"
	"github.com/edgecomet/pagerender/pkg/types"
)

// loadEvent is the lifecycle event a render waits for before capturing output
const loadEvent = "load"

// pageState is the per-render state shared by the task sequence
type pageState struct {
	frameID cdp.FrameID
	events  []string
}

// RenderHTML loads the page and returns its serialized DOM. When req.BaseURL is set
// the document carries a <base href> pointing at it.
func (ci *ChromeInstance) RenderHTML(ctx context.Context, req *types.RenderRequest) ([]byte, error) {
	var (
		state pageState
		html  string
	)

	err := ci.run(ctx, req, chromedp.Tasks{
		ci.prepareTab(ci.viewport.Width, ci.viewport.Height),
		ci.navigate(req, &state),
		extractHTML(&html),
	})
	if err != nil {
		return nil, err
	}

	if len(html) > ci.maxHTMLSize() {
		ci.logger.Warn("Response exceeds size limit - discarding",
			zap.String("request_id", req.RequestID),
			zap.String("url", req.URL),
			zap.Int("size", len(html)),
			zap.Int("max_size", ci.maxHTMLSize()))
		return nil, fmt.Errorf("%w: %d bytes", ErrResponseTooLarge, len(html))
	}

	out := []byte(html)
	if req.BaseURL != "" {
		if out, err = htmlprocessor.InjectBaseHref(out, req.BaseURL); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBaseURL, err)
		}
	}

	return out, nil
}

// RenderPNG loads the page and captures it as PNG. Width falls back to the instance
// viewport; a zero height captures the full page.
func (ci *ChromeInstance) RenderPNG(ctx context.Context, req *types.RenderRequest) ([]byte, error) {
	width, height := req.Width, req.Height
	if width == 0 {
		width = ci.viewport.Width
	}
	windowHeight := height
	if windowHeight == 0 {
		windowHeight = ci.viewport.Height
	}

	var (
		state pageState
		buf   []byte
	)

	tasks := chromedp.Tasks{
		ci.prepareTab(width, windowHeight),
		ci.navigate(req, &state),
	}
	if req.BaseURL != "" {
		tasks = append(tasks, applyBaseURL(req.BaseURL, &state))
	}
	tasks = append(tasks, screenshot(height == 0, &buf))

	if err := ci.run(ctx, req, tasks); err != nil {
		return nil, err
	}
	return buf, nil
}

// run executes tasks in a new tab. The tab is closed as soon as ctx is done.
func (ci *ChromeInstance) run(ctx context.Context, req *types.RenderRequest, tasks chromedp.Tasks) error {
	start := time.Now()

	tabCtx, tabCancel := ci.newTab()
	defer tabCancel()

	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	err := chromedp.Run(tabCtx, tasks)

	if ctxErr := ctx.Err(); ctxErr != nil {
		ci.logger.Debug("Render abandoned",
			zap.String("request_id", req.RequestID),
			zap.Int("instance_id", ci.ID),
			zap.String("url", req.URL),
			zap.Duration("elapsed", time.Since(start)))
		return ctxErr
	}
	if err != nil {
		if !errors.Is(err, types.ErrRender) {
			err = fmt.Errorf("%w: %v", ErrNavigateFailed, err)
		}
		return err
	}

	ci.logger.Debug("Render completed",
		zap.String("request_id", req.RequestID),
		zap.Int("instance_id", ci.ID),
		zap.String("url", req.URL),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (ci *ChromeInstance) maxHTMLSize() int {
	if ci.maxHTML > 0 {
		return ci.maxHTML
	}
	return defaultMaxHTMLSize
}

// prepareTab resets per-tab state and sizes the viewport
func (ci *ChromeInstance) prepareTab(width, height int) chromedp.Tasks {
	return chromedp.Tasks{
		network.Enable(),
		network.ClearBrowserCookies(),
		enableLifeCycle(),
		emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1.0, false),
	}
}

// navigate loads req.URL and waits for the load event of that navigation
func (ci *ChromeInstance) navigate(req *types.RenderRequest, state *pageState) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		loaded := waitForEvent(ctx, loadEvent, state)

		frameID, loaderID, errorText, err := page.Navigate(req.URL).Do(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNavigateFailed, err)
		}
		if errorText != "" {
			return fmt.Errorf("%w: %s", ErrNavigateFailed, errorText)
		}
		state.frameID = frameID

		if err := loaded(frameID, loaderID); err != nil {
			return err
		}

		ci.logger.Debug("Page loaded",
			zap.String("request_id", req.RequestID),
			zap.Int("instance_id", ci.ID),
			zap.String("url", req.URL),
			zap.Strings("lifecycle_events", state.events))
		return nil
	}
}

// waitForEvent subscribes to lifecycle events before navigation starts and returns a
// function that blocks until eventName fires for the given frame and loader.
func waitForEvent(ctx context.Context, eventName string, state *pageState) func(cdp.FrameID, cdp.LoaderID) error {
	type lifecycleEvent struct {
		frameID  cdp.FrameID
		loaderID cdp.LoaderID
		name     string
	}

	var (
		mu   sync.Mutex
		seen []lifecycleEvent
	)
	notify := make(chan struct{}, 1)
	listenerCtx, cancel := context.WithCancel(ctx)

	// The listener runs on the tab's event loop and must not block
	chromedp.ListenTarget(listenerCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok {
			mu.Lock()
			seen = append(seen, lifecycleEvent{frameID: e.FrameID, loaderID: e.LoaderID, name: string(e.Name)})
			mu.Unlock()
			select {
			case notify <- struct{}{}:
			default:
			}
		}
	})

	return func(frameID cdp.FrameID, loaderID cdp.LoaderID) error {
		defer cancel()
		next := 0
		for {
			mu.Lock()
			pending := seen[next:]
			next = len(seen)
			mu.Unlock()

			for _, e := range pending {
				if e.frameID != frameID || e.loaderID != loaderID {
					continue
				}
				state.events = append(state.events, e.name)
				if e.name == eventName {
					return nil
				}
			}

			select {
			case <-notify:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// extractHTML serializes the document, retrying while the DOM is still settling
func extractHTML(output *string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		var lastErr error

		for attempt := 0; attempt < 3; attempt++ {
			if attempt > 0 {
				select {
				case <-time.After(300 * time.Millisecond):
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			root, err := dom.GetDocument().Do(ctx)
			if err != nil {
				lastErr = err
				continue
			}

			html, err := dom.GetOuterHTML().WithNodeID(root.NodeID).Do(ctx)
			if err != nil {
				lastErr = err
				continue
			}

			*output = html
			return nil
		}

		return fmt.Errorf("%w after 3 attempts: %v", ErrExtractHTML, lastErr)
	}
}

// applyBaseURL replaces the loaded document with a copy that resolves relative
// references against baseURL, then waits for it to be ready.
func applyBaseURL(baseURL string, state *pageState) chromedp.Tasks {
	var html string
	return chromedp.Tasks{
		extractHTML(&html),
		chromedp.ActionFunc(func(ctx context.Context) error {
			withBase, err := htmlprocessor.InjectBaseHref([]byte(html), baseURL)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrBaseURL, err)
			}
			if err := page.SetDocumentContent(state.frameID, string(withBase)).Do(ctx); err != nil {
				return fmt.Errorf("%w: %v", ErrBaseURL, err)
			}
			return nil
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
}

// screenshot captures the viewport, or the whole page when fullPage is set
func screenshot(fullPage bool, buf *[]byte) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		var action chromedp.Action = chromedp.CaptureScreenshot(buf)
		if fullPage {
			action = chromedp.FullScreenshot(buf, 100) // quality 100 selects PNG
		}
		if err := action.Do(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrScreenshot, err)
		}
		return nil
	}
}

// enableLifeCycle enables page lifecycle events
func enableLifeCycle() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if err := page.Enable().Do(ctx); err != nil {
			return err
		}
		return page.SetLifecycleEventsEnabled(true).Do(ctx)
	}
}

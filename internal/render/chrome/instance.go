package chrome

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// NewChromeInstance launches a browser and warms it up. A failed warmup is logged, not fatal.
func NewChromeInstance(id int, config *Config, logger *zap.Logger) (*ChromeInstance, error) {
	instance := newIdleInstance(id, config, logger)

	if err := instance.launch(); err != nil {
		return nil, fmt.Errorf("failed to create Chrome instance %d: %w", id, err)
	}

	instance.logger.Info("Chrome instance created",
		zap.Int("instance_id", id),
		zap.String("browser_version", instance.browserVersion))

	if err := instance.Warmup(config); err != nil {
		instance.logger.Warn("Chrome instance warmup failed",
			zap.Int("instance_id", id),
			zap.Error(err))
	}

	return instance, nil
}

// newIdleInstance builds the bookkeeping part of an instance without a browser process
func newIdleInstance(id int, config *Config, logger *zap.Logger) *ChromeInstance {
	now := time.Now().UTC()
	return &ChromeInstance{
		ID:           id,
		createdAt:    now,
		logger:       logger,
		viewport:     config.Viewport,
		maxHTML:      config.MaxHTMLSize,
		status:       int32(ChromeStatusIdle),
		lastUsedNano: now.UnixNano(),
	}
}

// launch starts the Chrome process and opens the browser context
func (ci *ChromeInstance) launch() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(ci.viewport.Width, ci.viewport.Height),
	)

	ci.allocatorCtx, ci.allocatorCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	ci.ctx, ci.cancel = chromedp.NewContext(ci.allocatorCtx)

	if err := chromedp.Run(ci.ctx); err != nil {
		ci.allocatorCancel()
		return fmt.Errorf("failed to start Chrome: %w", err)
	}

	version, err := ci.version(ci.ctx)
	if err != nil {
		ci.logger.Warn("Failed to capture browser version",
			zap.Int("instance_id", ci.ID),
			zap.Error(err))
	}
	ci.browserVersion = version

	return nil
}

func (ci *ChromeInstance) version(ctx context.Context) (string, error) {
	var product string
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		_, product, _, _, _, err = browser.GetVersion().Do(ctx)
		return err
	}))
	return product, err
}

// Warmup navigates to a test page to ensure the browser is ready
func (ci *ChromeInstance) Warmup(config *Config) error {
	ctx, cancel := context.WithTimeout(ci.ctx, config.WarmupTimeout)
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.Navigate(config.WarmupURL)); err != nil {
		return fmt.Errorf("warmup navigation failed: %w", err)
	}

	ci.logger.Debug("Chrome instance warmed up",
		zap.Int("instance_id", ci.ID),
		zap.String("warmup_url", config.WarmupURL))

	return nil
}

// IsAlive checks if the Chrome instance is still responsive
func (ci *ChromeInstance) IsAlive() bool {
	if ci.GetStatus() == ChromeStatusDead || ci.ctx == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ci.ctx, 5*time.Second)
	defer cancel()

	_, err := ci.version(ctx)
	return err == nil
}

// Age returns how long the instance has been running
func (ci *ChromeInstance) Age() time.Duration {
	return time.Now().UTC().Sub(ci.createdAt)
}

// ShouldRestart reports whether the render count or age policy has been reached
func (ci *ChromeInstance) ShouldRestart(config *Config) bool {
	return int(ci.GetRequestsDone()) >= config.RestartAfterCount || ci.Age() >= config.RestartAfterTime
}

// Restart terminates and relaunches the browser process
func (ci *ChromeInstance) Restart(config *Config) error {
	ci.logger.Info("Restarting Chrome instance",
		zap.String("request_id", ci.currentRequestID),
		zap.Int("instance_id", ci.ID),
		zap.Int32("requests_done", ci.GetRequestsDone()),
		zap.Duration("age", ci.Age()))

	ci.SetStatus(ChromeStatusRestarting)
	ci.closeBrowser()

	now := time.Now().UTC()
	atomic.StoreInt32(&ci.requestsDone, 0)
	ci.createdAt = now
	atomic.StoreInt64(&ci.lastUsedNano, now.UnixNano())

	if err := ci.launch(); err != nil {
		ci.SetStatus(ChromeStatusDead)
		return fmt.Errorf("%w: %v", ErrRestartFailed, err)
	}
	ci.SetStatus(ChromeStatusIdle)

	if err := ci.Warmup(config); err != nil {
		ci.logger.Warn("Warmup failed after restart",
			zap.Int("instance_id", ci.ID),
			zap.Error(err))
	}

	return nil
}

// Terminate shuts down the browser process
func (ci *ChromeInstance) Terminate() {
	ci.SetStatus(ChromeStatusDead)
	ci.closeBrowser()
}

func (ci *ChromeInstance) closeBrowser() {
	if ci.cancel != nil {
		ci.cancel()
	}
	if ci.allocatorCancel != nil {
		ci.allocatorCancel()
	}
}

// IncrementRequests increments the request counter
func (ci *ChromeInstance) IncrementRequests() {
	atomic.AddInt32(&ci.requestsDone, 1)
	atomic.StoreInt64(&ci.lastUsedNano, time.Now().UTC().UnixNano())
}

// newTab opens a fresh tab in this browser
func (ci *ChromeInstance) newTab() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(ci.ctx)
}

// GetStatus returns the current status
func (ci *ChromeInstance) GetStatus() ChromeStatus {
	return ChromeStatus(atomic.LoadInt32(&ci.status))
}

// SetStatus updates the instance status
func (ci *ChromeInstance) SetStatus(status ChromeStatus) {
	atomic.StoreInt32(&ci.status, int32(status))
}

// GetRequestsDone returns the number of completed requests
func (ci *ChromeInstance) GetRequestsDone() int32 {
	return atomic.LoadInt32(&ci.requestsDone)
}

// GetLastUsed returns the last used time
func (ci *ChromeInstance) GetLastUsed() time.Time {
	return time.Unix(0, atomic.LoadInt64(&ci.lastUsedNano))
}

// GetBrowserVersion returns the browser product string, e.g. "HeadlessChrome/120.0.6099.109"
func (ci *ChromeInstance) GetBrowserVersion() string {
	return ci.browserVersion
}

// Package pageview embeds page content through a Chrome DevTools session.
// Each tab gets its own browser target; targets of the same profile share an
// allocator so cookies and storage stay profile-scoped.
package pageview

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"pkt.systems/loom/core"
	"pkt.systems/loom/schema"
	"pkt.systems/pslog"
)

// Config configures the Chrome backend.
type Config struct {
	// ExecPath overrides the browser binary; empty uses chromedp's lookup.
	ExecPath string
	// Headless runs without a visible browser window.
	Headless bool
	// ProfileDir is the root under which per-profile user data lives.
	ProfileDir string
}

// Factory builds chromedp-backed page views. It implements
// core.PageViewFactory.
type Factory struct {
	cfg Config
	log pslog.Logger

	mu         sync.Mutex
	allocators map[schema.ProfileID]context.Context
	cancels    []context.CancelFunc
}

// NewFactory constructs a factory. Close releases every browser it started.
func NewFactory(cfg Config, log pslog.Logger) *Factory {
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &Factory{
		cfg:        cfg,
		log:        log,
		allocators: make(map[schema.ProfileID]context.Context),
	}
}

// NewPageView starts a browser target for the profile and navigates it to
// the requested entry.
func (f *Factory) NewPageView(ctx context.Context, opts core.PageViewOptions) (core.PageView, error) {
	alloc, err := f.allocator(opts.ProfileID)
	if err != nil {
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(alloc)
	view := &View{
		ctx:         tabCtx,
		cancel:      cancel,
		log:         f.log.With("profile", opts.ProfileID),
		seedHistory: opts.History,
		seedIndex:   opts.HistoryIndex,
	}
	if opts.URL != "" {
		if err := view.Navigate(opts.URL); err != nil {
			cancel()
			return nil, fmt.Errorf("initial navigation: %w", err)
		}
	}
	return view, nil
}

// allocator returns the profile's exec allocator, starting one on first use.
func (f *Factory) allocator(profileID schema.ProfileID) (context.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if alloc, ok := f.allocators[profileID]; ok {
		return alloc, nil
	}
	dataDir := filepath.Join(f.cfg.ProfileDir, string(profileID))
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, err
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(dataDir),
		chromedp.Flag("headless", f.cfg.Headless),
	)
	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}
	alloc, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	f.allocators[profileID] = alloc
	f.cancels = append(f.cancels, cancel)
	f.log.Debug("browser allocator started", "profile", profileID, "data_dir", dataDir)
	return alloc, nil
}

// Close tears down every browser the factory started.
func (f *Factory) Close() {
	f.mu.Lock()
	cancels := f.cancels
	f.cancels = nil
	f.allocators = make(map[schema.ProfileID]context.Context)
	f.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// View is one browser target. It implements core.PageView.
type View struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    pslog.Logger

	// seedHistory backs NavigationHistory until the target has its own
	// entries, since DevTools cannot inject prior history into a fresh tab.
	seedHistory []schema.NavigationEntry
	seedIndex   int
}

const probeTimeout = 2 * time.Second

// Show raises the target.
func (v *View) Show() error {
	return chromedp.Run(v.ctx, page.BringToFront())
}

// Hide is a no-op at the DevTools level; the host window conceals the view.
func (v *View) Hide() error { return nil }

// SetBounds resizes the rendered viewport.
func (v *View) SetBounds(bounds schema.Rect) error {
	if bounds.Width <= 0 || bounds.Height <= 0 {
		return nil
	}
	return chromedp.Run(v.ctx, chromedp.EmulateViewport(int64(bounds.Width), int64(bounds.Height)))
}

// SetZOrder is tracked by the host compositor, not the browser target.
func (v *View) SetZOrder(int) error { return nil }

// Navigate loads the url.
func (v *View) Navigate(url string) error {
	return chromedp.Run(v.ctx, chromedp.Navigate(url))
}

// NavigationHistory returns the target's navigation entries, falling back to
// the seed history while the target has none.
func (v *View) NavigationHistory() ([]schema.NavigationEntry, int, error) {
	ctx, cancel := context.WithTimeout(v.ctx, probeTimeout)
	defer cancel()
	var index int64
	var raw []*page.NavigationEntry
	err := chromedp.Run(ctx, chromedp.NavigationEntries(&index, &raw))
	if err != nil {
		return nil, 0, err
	}
	if len(raw) == 0 {
		return v.seedHistory, v.seedIndex, nil
	}
	entries := make([]schema.NavigationEntry, 0, len(raw))
	for _, entry := range raw {
		entries = append(entries, schema.NavigationEntry{URL: entry.URL, Title: entry.Title})
	}
	return entries, int(index), nil
}

// MediaPlaying probes the page for actively playing audio or video.
func (v *View) MediaPlaying() bool {
	ctx, cancel := context.WithTimeout(v.ctx, probeTimeout)
	defer cancel()
	var playing bool
	err := chromedp.Run(ctx, chromedp.Evaluate(
		`Array.from(document.querySelectorAll('video,audio')).some(m => !m.paused && !m.ended && m.readyState > 2)`,
		&playing,
	))
	if err != nil {
		return false
	}
	return playing
}

// EnterPictureInPicture asks the first playing video to detach. Browsers may
// refuse without a user gesture; the caller treats that as best effort.
func (v *View) EnterPictureInPicture() error {
	ctx, cancel := context.WithTimeout(v.ctx, probeTimeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.Evaluate(
		`(() => {
			const video = Array.from(document.querySelectorAll('video')).find(m => !m.paused && !m.ended);
			if (!video) { throw new Error('no playing video'); }
			video.requestPictureInPicture();
		})()`,
		nil,
	))
}

// ExitPictureInPicture returns a detached video to the page.
func (v *View) ExitPictureInPicture() error {
	ctx, cancel := context.WithTimeout(v.ctx, probeTimeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.Evaluate(
		`document.pictureInPictureElement ? document.exitPictureInPicture() : undefined`,
		nil,
	))
}

// Destroy closes the browser target.
func (v *View) Destroy() error {
	v.cancel()
	return nil
}

package core

import (
	"context"
	"time"

	"pkt.systems/loom/internal/logx"
	"pkt.systems/loom/schema"
)

// lifecycleManager drives per-tab page-view lifecycle transitions: sleep,
// wake, show, hide and picture-in-picture. All methods run under the engine
// mutex; a failed transition leaves the tab in its previous state.
type lifecycleManager struct {
	engine *Engine
}

// sleepLocked tears down the tab's page view after capturing its navigation
// state. Visible tabs cannot sleep.
func (m *lifecycleManager) sleepLocked(tab *Tab) error {
	if tab.asleep {
		return schema.ErrTabAsleep
	}
	if tab.visible {
		return schema.ErrTabVisible
	}
	snap := &sleepSnapshot{
		url:      tab.url,
		history:  tab.navHistory,
		index:    tab.navIndex,
		captured: time.Now().UTC(),
	}
	if history, index, err := tab.view.NavigationHistory(); err == nil {
		snap.history = history
		snap.index = index
		if index >= 0 && index < len(history) {
			snap.url = history[index].URL
		}
	} else {
		logx.Tab(m.engine.log, tab.id).Debug("navigation capture failed, keeping last known history", "error", err)
	}
	if err := tab.view.Destroy(); err != nil {
		logx.Tab(m.engine.log, tab.id).Warn("page view teardown failed, tab stays awake", "error", err)
		return err
	}
	tab.preSleep = snap
	tab.view = nil
	tab.asleep = true
	tab.pictureInPicture = false
	tab.navHistory = snap.history
	tab.navIndex = snap.index
	tab.url = snap.url
	return nil
}

// wakeLocked reconstructs the page view from the pre-sleep navigation state.
// A factory failure leaves the tab asleep.
func (m *lifecycleManager) wakeLocked(ctx context.Context, tab *Tab) error {
	if !tab.asleep {
		return schema.ErrTabAwake
	}
	opts := PageViewOptions{
		ProfileID:    tab.profileID,
		URL:          tab.url,
		History:      tab.navHistory,
		HistoryIndex: tab.navIndex,
	}
	if tab.preSleep != nil {
		opts.URL = tab.preSleep.url
		opts.History = tab.preSleep.history
		opts.HistoryIndex = tab.preSleep.index
	}
	view, err := m.engine.pageViews.NewPageView(ctx, opts)
	if err != nil {
		logx.Tab(m.engine.log, tab.id).Warn("page view construction failed, tab stays asleep", "error", err)
		return err
	}
	tab.view = view
	tab.asleep = false
	tab.navHistory = opts.History
	tab.navIndex = opts.HistoryIndex
	tab.url = opts.URL
	tab.preSleep = nil
	return nil
}

// showLocked makes an awake tab's view visible and leaves picture-in-picture
// if the tab had entered it while hidden.
func (m *lifecycleManager) showLocked(tab *Tab) error {
	if tab.asleep {
		return schema.ErrTabAsleep
	}
	if err := tab.view.Show(); err != nil {
		logx.Tab(m.engine.log, tab.id).Warn("show failed", "error", err)
		return err
	}
	tab.visible = true
	tab.touch()
	if tab.pictureInPicture {
		if err := tab.view.ExitPictureInPicture(); err != nil {
			logx.Tab(m.engine.log, tab.id).Debug("picture-in-picture exit failed", "error", err)
		} else {
			tab.pictureInPicture = false
		}
	}
	return nil
}

// hideLocked conceals the view. A tab hidden while playing media attempts to
// continue in picture-in-picture.
func (m *lifecycleManager) hideLocked(tab *Tab) error {
	if tab.asleep {
		return schema.ErrTabAsleep
	}
	if err := tab.view.Hide(); err != nil {
		logx.Tab(m.engine.log, tab.id).Warn("hide failed", "error", err)
		return err
	}
	tab.visible = false
	if tab.view.MediaPlaying() {
		if err := tab.view.EnterPictureInPicture(); err != nil {
			logx.Tab(m.engine.log, tab.id).Debug("picture-in-picture entry failed", "error", err)
		} else {
			tab.pictureInPicture = true
		}
	}
	return nil
}

// syncFullScreenLocked records the host window's full-screen flag on every
// tab in the window.
func (m *lifecycleManager) syncFullScreenLocked(windowID schema.WindowID, on bool) {
	for _, tab := range m.engine.tabs {
		if tab.windowID == windowID {
			tab.fullScreen = on
		}
	}
}

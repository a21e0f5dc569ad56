package logx

import (
	"context"

	"pkt.systems/loom/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	windowKey contextKey = iota
	tabKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithWindow annotates the logger with the window id if present.
func WithWindow(ctx context.Context, windowID schema.WindowID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if windowID != "" {
		if current, ok := ctx.Value(windowKey).(schema.WindowID); ok && current == windowID {
			return log
		}
		log = log.With("window", windowID)
	}
	return log
}

// WithTab annotates the logger with a tab id.
func WithTab(ctx context.Context, tabID schema.TabID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if tabID != 0 {
		if current, ok := ctx.Value(tabKey).(schema.TabID); ok && current == tabID {
			return log
		}
		log = log.With("tab", uint64(tabID))
	}
	return log
}

// Tab annotates an explicit logger with a tab id.
func Tab(log pslog.Logger, tabID schema.TabID) pslog.Logger {
	if tabID != 0 {
		log = log.With("tab", uint64(tabID))
	}
	return log
}

// WithSlot annotates the logger with a window+space activation slot.
func WithSlot(log pslog.Logger, windowID schema.WindowID, spaceID schema.SpaceID) pslog.Logger {
	if windowID != "" {
		log = log.With("window", windowID)
	}
	if spaceID != "" {
		log = log.With("space", spaceID)
	}
	return log
}

// WithGroup annotates the logger with a group id and mode when available.
func WithGroup(log pslog.Logger, groupID schema.GroupID, mode schema.GroupMode) pslog.Logger {
	if groupID != "" {
		log = log.With("group", groupID)
	}
	if mode != "" {
		log = log.With("mode", mode)
	}
	return log
}

// ContextWithWindow stores the window marker on the context for log de-duplication.
func ContextWithWindow(ctx context.Context, windowID schema.WindowID) context.Context {
	if ctx == nil || windowID == "" {
		return ctx
	}
	return context.WithValue(ctx, windowKey, windowID)
}

// ContextWithTab stores the tab marker on the context for log de-duplication.
func ContextWithTab(ctx context.Context, tabID schema.TabID) context.Context {
	if ctx == nil || tabID == 0 {
		return ctx
	}
	return context.WithValue(ctx, tabKey, tabID)
}

// ContextWithLogger attaches the logger plus window/tab markers to the context.
func ContextWithLogger(ctx context.Context, log pslog.Logger, windowID schema.WindowID, tabID schema.TabID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithTab(ContextWithWindow(ctx, windowID), tabID)
}

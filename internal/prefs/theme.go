// Package prefs stores user interface preferences in the kv store.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ecocart/internal/core"
	"ecocart/internal/kv"
	"ecocart/internal/observe"
)

// Theme is the colour scheme preference.
type Theme string

// Supported themes.
const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme accepts "light" or "dark" in any case.
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(strings.ToLower(strings.TrimSpace(s))); t {
	case ThemeLight, ThemeDark:
		return t, nil
	}
	return "", fmt.Errorf("unknown theme %q (want light or dark)", s)
}

// Themes persists the theme under its own key.
type Themes struct {
	kv    kv.Store
	hub   *observe.Hub
	opts  core.Options
	codec kv.Codec[Theme]
}

// NewThemes builds a theme store. A nil hub gets a private one.
func NewThemes(store kv.Store, hub *observe.Hub, opts ...core.Option) *Themes {
	if hub == nil {
		hub = observe.NewHub()
	}
	o := core.ResolveOptions(opts...)
	return &Themes{
		kv:   store,
		hub:  hub,
		opts: o,
		codec: kv.Codec[Theme]{
			Key:     kv.KeyTheme,
			Version: 1,
			Legacy:  legacyTheme,
			Logger:  o.Logger,
		},
	}
}

// Stored returns the saved theme, or false when none is saved or the saved
// value is not a known theme.
func (t *Themes) Stored(ctx context.Context) (Theme, bool, error) {
	v, ok, err := t.codec.Read(ctx, t.kv)
	if err != nil || !ok {
		return "", false, err
	}
	if v != ThemeLight && v != ThemeDark {
		return "", false, nil
	}
	return v, true, nil
}

// Preferred is the stored theme, else dark when the system prefers dark,
// else light.
func (t *Themes) Preferred(ctx context.Context, systemDark bool) Theme {
	if v, ok, err := t.Stored(ctx); err == nil && ok {
		return v
	} else if err != nil {
		t.opts.Logger.Warn("theme unreadable", "error", err)
	}
	if systemDark {
		return ThemeDark
	}
	return ThemeLight
}

// Set saves theme and notifies subscribers.
func (t *Themes) Set(ctx context.Context, theme Theme) error {
	if _, err := ParseTheme(string(theme)); err != nil {
		return err
	}
	if err := t.codec.Write(ctx, t.kv, theme); err != nil {
		return err
	}
	t.hub.Publish(observe.Event{Topic: observe.TopicTheme, Key: kv.KeyTheme})
	return nil
}

// Subscribe registers fn for theme changes.
func (t *Themes) Subscribe(fn func(observe.Event)) func() {
	return t.hub.SubscribeTopic(observe.TopicTheme, fn)
}

func legacyTheme(raw []byte) (Theme, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	return ParseTheme(s)
}

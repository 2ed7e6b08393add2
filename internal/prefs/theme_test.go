package prefs

import (
	"context"
	"testing"

	"ecocart/internal/kv"
	"ecocart/internal/observe"
)

func TestPreferredFallsBackToSystem(t *testing.T) {
	th := NewThemes(kv.NewMemory(), nil)
	ctx := context.Background()
	if got := th.Preferred(ctx, true); got != ThemeDark {
		t.Fatalf("expected dark from system, got %s", got)
	}
	if got := th.Preferred(ctx, false); got != ThemeLight {
		t.Fatalf("expected light default, got %s", got)
	}
}

func TestSetOverridesSystemAndNotifies(t *testing.T) {
	ctx := context.Background()
	th := NewThemes(kv.NewMemory(), observe.NewHub())
	var events int
	th.Subscribe(func(observe.Event) { events++ })

	if err := th.Set(ctx, ThemeLight); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := th.Preferred(ctx, true); got != ThemeLight {
		t.Fatalf("stored theme must win, got %s", got)
	}
	if err := th.Set(ctx, Theme("sepia")); err == nil {
		t.Fatalf("expected unknown theme rejected")
	}
	if events != 1 {
		t.Fatalf("expected one event, got %d", events)
	}
}

func TestStoredReadsLegacyAndIgnoresJunk(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	th := NewThemes(store, nil)

	_ = store.Set(ctx, kv.KeyTheme, []byte("dark"))
	if v, ok, err := th.Stored(ctx); err != nil || !ok || v != ThemeDark {
		t.Fatalf("legacy theme = %q %v %v", v, ok, err)
	}
	_ = store.Set(ctx, kv.KeyTheme, []byte("neon"))
	if _, ok, err := th.Stored(ctx); err != nil || ok {
		t.Fatalf("junk theme must read as unset, got %v %v", ok, err)
	}
	_ = store.Set(ctx, kv.KeyTheme, []byte(`{"schema":1,"data":"purple"}`))
	if _, ok, _ := th.Stored(ctx); ok {
		t.Fatalf("unknown enveloped theme must read as unset")
	}
}

func TestParseTheme(t *testing.T) {
	if th, err := ParseTheme(" Dark "); err != nil || th != ThemeDark {
		t.Fatalf("ParseTheme = %q %v", th, err)
	}
	if _, err := ParseTheme(""); err == nil {
		t.Fatalf("expected error for empty theme")
	}
}

package kv

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryBackend(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	t.Run("LoadMissing", func(t *testing.T) {
		data, err := b.Load(ctx, "missing")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if data != nil {
			t.Errorf("Load returned %q for missing key", data)
		}
	})

	t.Run("SaveLoad", func(t *testing.T) {
		in := []byte(`{"theme":"dark"}`)
		if err := b.Save(ctx, "appState", in); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		in[0] = 'X' // caller mutation must not leak in

		out, err := b.Load(ctx, "appState")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if string(out) != `{"theme":"dark"}` {
			t.Errorf("Load = %s", out)
		}
	})

	t.Run("Keys", func(t *testing.T) {
		_ = b.Save(ctx, "language", []byte(`"en"`))
		keys := b.Keys()
		if len(keys) != 2 || keys[0] != "appState" || keys[1] != "language" {
			t.Errorf("Keys = %v", keys)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := b.Delete(ctx, "appState"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := b.Delete(ctx, "appState"); err != nil {
			t.Fatalf("second Delete failed: %v", err)
		}
		if data, _ := b.Load(ctx, "appState"); data != nil {
			t.Error("value still present after Delete")
		}
	})

	t.Run("Closed", func(t *testing.T) {
		_ = b.Close()
		if err := b.Save(ctx, "k", nil); !errors.Is(err, ErrClosed) {
			t.Errorf("Save after Close = %v, want ErrClosed", err)
		}
		if _, err := b.Load(ctx, "k"); !errors.Is(err, ErrClosed) {
			t.Errorf("Load after Close = %v, want ErrClosed", err)
		}
	})
}

package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "key")
	if err != nil || hit || data != nil {
		t.Errorf("Get = %q, %v, %v; want miss", data, hit, err)
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, hit, _ := c.Get(ctx, "missing"); hit {
		t.Error("Get(missing) hit")
	}
	if err := c.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatal(err)
	}
	data, hit, err := c.Get(ctx, "k")
	if err != nil || !hit || string(data) != "v" {
		t.Errorf("Get(k) = %q, %v, %v; want v, true, nil", data, hit, err)
	}

	if err := c.Set(ctx, "old", []byte("v"), time.Nanosecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if _, hit, _ := c.Get(ctx, "old"); hit {
		t.Error("expired entry returned")
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("second Delete error: %v", err)
	}
}

func TestFileCacheClear(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	for _, k := range []string{"a", "b", "c"} {
		if err := c.Set(ctx, k, []byte(k), 0); err != nil {
			t.Fatal(err)
		}
	}
	n, err := c.Clear()
	if err != nil || n != 3 {
		t.Errorf("Clear() = %d, %v; want 3, nil", n, err)
	}
	if _, hit, _ := c.Get(ctx, "a"); hit {
		t.Error("entry survived Clear")
	}
}

func TestHash(t *testing.T) {
	h1, h2, h3 := Hash([]byte("hello")), Hash([]byte("hello")), Hash([]byte("world"))
	if h1 != h2 {
		t.Error("Hash is not deterministic")
	}
	if h1 == h3 {
		t.Error("different inputs hash equal")
	}
	if len(h1) != 64 {
		t.Errorf("len(Hash) = %d, want 64", len(h1))
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()
	k1 := k.ResultKey("data", "setup", ResultKeyOpts{Mode: "exclusive"})
	k2 := k.ResultKey("data", "setup", ResultKeyOpts{Mode: "fuzzy"})
	k3 := k.ResultKey("data", "other", ResultKeyOpts{Mode: "exclusive"})
	if k1 == k2 || k1 == k3 {
		t.Error("different inputs produced equal result keys")
	}
	if !strings.HasPrefix(k1, "result:") {
		t.Errorf("ResultKey = %q, want result: prefix", k1)
	}
}

func TestScopedKeyer(t *testing.T) {
	scoped := NewScopedKeyer(nil, "api:")
	plain := NewDefaultKeyer().ResultKey("d", "s", ResultKeyOpts{})
	if got := scoped.ResultKey("d", "s", ResultKeyOpts{}); got != "api:"+plain {
		t.Errorf("ResultKey = %q, want api:%s", got, plain)
	}
	if got := scoped.ResultKey("d", "s", ResultKeyOpts{}); !strings.HasPrefix(got, "api:result:") {
		t.Errorf("ResultKey = %q, want api:result: prefix", got)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	retryDelay = time.Millisecond
	ctx := context.Background()
	errNetwork := errors.New("network")

	tests := []struct {
		name      string
		failures  int
		retryable bool
		wantCalls int
		wantErr   bool
	}{
		{"success", 0, true, 1, false},
		{"permanent", 5, false, 1, true},
		{"recovers", 1, true, 2, false},
		{"exhausted", 5, true, 3, true},
	}
	for _, tt := range tests {
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			if calls <= tt.failures {
				if tt.retryable {
					return Retryable(errNetwork)
				}
				return errNetwork
			}
			return nil
		})
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if calls != tt.wantCalls {
			t.Errorf("%s: calls = %d, want %d", tt.name, calls, tt.wantCalls)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := RetryWithBackoff(cancelled, func() error { return Retryable(errNetwork) }); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled retry = %v, want context.Canceled", err)
	}
}

package neighbor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitForVersion(t *testing.T, ix *Index, want uint64) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if ix.Version() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("index did not reach version %d (at %d)", want, ix.Version())
}

func TestMonitor_RebuildsOnRequest(t *testing.T) {
	ix := testIndex(t, true)
	v := ix.Version()

	mon := NewMonitor(ix, MonitorOptions{
		PollInterval: 20 * time.Millisecond,
		SettleWindow: 10 * time.Millisecond,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mon.Run(ctx)

	ix.RequestReload()
	waitForVersion(t, ix, v+1)
}

func TestMonitor_SignalFileTriggersRebuild(t *testing.T) {
	dir := t.TempDir()
	signal := filepath.Join(dir, "reload.signal")

	ix := testIndex(t, true)
	v := ix.Version()

	mon := NewMonitor(ix, MonitorOptions{
		PollInterval: 20 * time.Millisecond,
		SettleWindow: 10 * time.Millisecond,
		SignalPath:   signal,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mon.Run(ctx)

	// give the watcher a moment to attach before touching the file
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(signal, []byte("1"), 0644); err != nil {
		t.Fatal(err)
	}
	waitForVersion(t, ix, v+1)
}

// A burst of reload requests inside one settle window lands in one rebuild.
func TestMonitor_SettleCoalescesSignals(t *testing.T) {
	ix := testIndex(t, true)
	v := ix.Version()

	mon := NewMonitor(ix, MonitorOptions{
		PollInterval: 10 * time.Millisecond,
		SettleWindow: 100 * time.Millisecond,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mon.Run(ctx)

	for i := 0; i < 5; i++ {
		ix.RequestReload()
		time.Sleep(15 * time.Millisecond)
	}
	waitForVersion(t, ix, v+1)
	// let any stray pending work run, then confirm only one rebuild landed
	time.Sleep(300 * time.Millisecond)
	if ix.Version() > v+2 {
		t.Errorf("signal storm caused %d rebuilds", ix.Version()-v)
	}
}

func TestMonitor_CancelStopsLoop(t *testing.T) {
	ix := testIndex(t, true)
	mon := NewMonitor(ix, MonitorOptions{
		PollInterval: 10 * time.Millisecond,
		SettleWindow: time.Millisecond,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on cancel")
	}
}

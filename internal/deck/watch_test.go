package deck

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type changeLog struct {
	mu    sync.Mutex
	paths []string
}

func (c *changeLog) add(rel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, rel)
}

func (c *changeLog) has(rel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.paths {
		if p == rel {
			return true
		}
	}
	return false
}

func (c *changeLog) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths)
}

func watchLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWatch_WriteReported(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &changeLog{}
	go Watch(ctx, root, watchLogger(), log.add)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, "english.csv"), []byte("Word\nhi\n"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.has("english.csv")
	}, "write to english.csv not reported")
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &changeLog{}
	go Watch(ctx, root, watchLogger(), log.add)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644)
	time.Sleep(600 * time.Millisecond)

	if log.count() != 0 {
		t.Errorf("unexpected callbacks: %d", log.count())
	}
}

func TestWatch_BurstCoalesced(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &changeLog{}
	go Watch(ctx, root, watchLogger(), log.add)
	time.Sleep(100 * time.Millisecond)

	p := filepath.Join(root, "chinese.csv")
	for i := 0; i < 5; i++ {
		_ = os.WriteFile(p, []byte("Word\nni hao\n"), 0o644)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.has("chinese.csv")
	}, "burst not reported")
	time.Sleep(400 * time.Millisecond)
	if log.count() != 1 {
		t.Errorf("callbacks = %d, want 1 for a burst", log.count())
	}
}

func TestWatch_NewDirWatched(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &changeLog{}
	go Watch(ctx, root, watchLogger(), log.add)
	time.Sleep(100 * time.Millisecond)

	sub := filepath.Join(root, "decks")
	_ = os.MkdirAll(sub, 0o755)
	time.Sleep(200 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "words.csv"), []byte("Word\nx\n"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.has("decks/words.csv")
	}, "file in new subdir not reported")
}

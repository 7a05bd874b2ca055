package store

import (
	"context"
	"sync"
	"testing"
	"time"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	clk := &stepClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	db, err := (Store{Dir: t.TempDir()}).Open(context.Background(), WithClock(clk.now))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

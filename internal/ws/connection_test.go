package ws

import (
	"sync"
	"testing"
	"time"
)

func TestLastActiveTracksTouch(t *testing.T) {
	c := &Connection{ID: "c1"}
	if !c.LastActive().Before(time.Now().Add(-time.Hour)) {
		t.Error("expected zero activity before first Touch")
	}

	before := time.Now()
	c.Touch()
	got := c.LastActive()
	if got.Before(before) || got.After(time.Now()) {
		t.Errorf("LastActive %v outside expected range", got)
	}
}

func TestTouchConcurrentWithLastActive(t *testing.T) {
	c := &Connection{ID: "c1"}
	c.Touch()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Touch()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if c.LastActive().IsZero() {
					t.Error("observed zero activity after Touch")
					return
				}
			}
		}()
	}
	wg.Wait()

	if time.Since(c.LastActive()) > time.Minute {
		t.Errorf("stale activity timestamp %v", c.LastActive())
	}
}

package quota

import (
	"sync"
	"testing"
	"time"
)

func TestBudgetBoundary(t *testing.T) {
	l := New(3)
	for n := range 3 {
		if !l.CanMakeRequest("user-1") {
			t.Fatalf("request %d denied before limit", n+1)
		}
		l.RecordRequest("user-1")
	}
	if l.CanMakeRequest("user-1") {
		t.Error("request allowed past the daily limit")
	}
	if got := l.Remaining("user-1"); got != 0 {
		t.Errorf("Remaining = %d, want 0", got)
	}
}

func TestPerUserIsolation(t *testing.T) {
	l := New(1)
	l.RecordRequest("user-1")
	if l.CanMakeRequest("user-1") {
		t.Error("user-1 not limited")
	}
	if !l.CanMakeRequest("user-2") {
		t.Error("user-2 affected by user-1's budget")
	}
}

func TestLazyDailyReset(t *testing.T) {
	l := New(2)
	now := time.Date(2026, 2, 1, 23, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.RecordRequest("user-1")
	l.RecordRequest("user-1")
	if l.CanMakeRequest("user-1") {
		t.Fatal("expected limit reached")
	}

	// Under a day later: still limited.
	now = now.Add(23 * time.Hour)
	if l.CanMakeRequest("user-1") {
		t.Error("budget reset before a full day elapsed")
	}

	// Past the day boundary: reset happens lazily at read time.
	now = now.Add(2 * time.Hour)
	if !l.CanMakeRequest("user-1") {
		t.Error("budget not reset after a day")
	}
	if got := l.Remaining("user-1"); got != 2 {
		t.Errorf("Remaining after reset = %d, want 2", got)
	}
}

func TestDefaultLimit(t *testing.T) {
	if got := New(0).Limit(); got != DefaultDailyLimit {
		t.Errorf("Limit = %d, want %d", got, DefaultDailyLimit)
	}
}

func TestConcurrentRecording(t *testing.T) {
	l := New(1000)
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 5 {
				l.CanMakeRequest("user-1")
				l.RecordRequest("user-1")
			}
		}()
	}
	wg.Wait()
	if got := l.Remaining("user-1"); got != 500 {
		t.Errorf("Remaining = %d, want 500", got)
	}
}

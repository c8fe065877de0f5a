package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/hatebu-galaxy/pkg/bookmark"
	"github.com/Sternrassler/hatebu-galaxy/pkg/gather"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

type fakeTopUpper struct {
	mu      sync.Mutex
	calls   []string
	records map[string]int
	block   chan struct{}
}

func (f *fakeTopUpper) TopUp(ctx context.Context, username string) gather.Result {
	f.mu.Lock()
	f.calls = append(f.calls, username)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return gather.Result{}
		}
	}
	return gather.Result{Records: make([]bookmark.Record, f.records[username])}
}

func (f *fakeTopUpper) callsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestNew_InvalidSchedule(t *testing.T) {
	tests := []string{"", "* * *", "0 0 */6 * *x *", "every day"}

	for _, schedule := range tests {
		if _, err := New(&fakeTopUpper{}, schedule, nil); err == nil {
			t.Errorf("New(%q) expected error", schedule)
		}
	}
}

func TestRunOnce(t *testing.T) {
	target := &fakeTopUpper{records: map[string]int{"firststar_hateno": 20, "second_user": 3}}
	s, err := New(target, "0 0 */6 * * *", []string{"firststar_hateno", "quiet_user", "second_user"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sum := s.RunOnce(context.Background())

	want := Summary{Users: 3, Records: 23, Partial: []string{"quiet_user"}}
	if diff := cmp.Diff(want, sum); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"firststar_hateno", "quiet_user", "second_user"}, target.callsSnapshot()); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestRunOnce_CanceledContext(t *testing.T) {
	target := &fakeTopUpper{}
	s, err := New(target, "@every 1h", []string{"firststar_hateno", "second_user"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if sum := s.RunOnce(ctx); sum.Users != 0 {
		t.Errorf("Users = %d, want 0", sum.Users)
	}
	if len(target.callsSnapshot()) != 0 {
		t.Errorf("TopUp called %d times, want 0", len(target.callsSnapshot()))
	}
}

func TestTick_SkipsOverlappingRuns(t *testing.T) {
	target := &fakeTopUpper{block: make(chan struct{})}
	s, err := New(target, "@every 1h", []string{"firststar_hateno"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.tick()
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(target.callsSnapshot()) == 0 {
		select {
		case <-deadline:
			t.Fatal("first run never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// second tick while the first one blocks
	s.tick()
	if got := len(target.callsSnapshot()); got != 1 {
		t.Errorf("TopUp calls = %d, want 1 while a run is active", got)
	}

	close(target.block)
	<-done
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	target := &fakeTopUpper{block: make(chan struct{})}
	s, err := New(target, "* * * * * *", []string{"firststar_hateno"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.Start()

	deadline := time.After(3 * time.Second)
	for len(target.callsSnapshot()) == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduled run never started")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Stop cancels the blocked run and waits for it.
	ctx, cancel := context.WithTimeout(context.Background(), StopTimeout)
	defer cancel()
	s.Stop(ctx)
}

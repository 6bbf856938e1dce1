package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"escrowchain/native/payment"
	"escrowchain/storage"
)

func TestBlockClockAdvancesHeight(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, _ := newTestRuntime(t, db)

	clock := NewBlockClock(rt, time.Millisecond, nil)
	closed := make(chan payment.TickSummary, 8)
	clock.onBlock = func(summary payment.TickSummary, err error) {
		if err != nil {
			t.Errorf("end block: %v", err)
		}
		select {
		case closed <- summary:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock.Start(ctx)

	for i := 0; i < 3; i++ {
		select {
		case summary := <-closed:
			if summary.Height == 0 {
				t.Fatalf("unexpected zero height summary")
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("block %d was not closed", i)
		}
	}
	clock.Stop()
	if clock.Running() {
		t.Fatalf("clock still reports running after Stop")
	}
	if rt.Height() < 4 {
		t.Fatalf("expected height to reach at least 4, got %d", rt.Height())
	}
}

func TestBlockClockStopWaitsForBlockInProgress(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, _ := newTestRuntime(t, db)

	clock := NewBlockClock(rt, time.Millisecond, nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	var first sync.Once
	clock.onBlock = func(payment.TickSummary, error) {
		first.Do(func() {
			close(entered)
			<-release
		})
	}
	clock.Start(context.Background())

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("no block was closed")
	}
	stopped := make(chan struct{})
	go func() {
		clock.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatalf("Stop returned while a block was still being closed")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return after the block finished")
	}
	if clock.Running() {
		t.Fatalf("clock still reports running")
	}
}

func TestBlockClockStopWithoutStart(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, _ := newTestRuntime(t, db)

	clock := NewBlockClock(rt, time.Millisecond, nil)
	clock.Stop()
	clock.Start(context.Background())
	if clock.Running() {
		t.Fatalf("a stopped clock must not start")
	}
	if rt.Height() != 1 {
		t.Fatalf("expected no blocks, got height %d", rt.Height())
	}
}

package core

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"escrowchain/core/events"
	"escrowchain/core/state"
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/common"
	"escrowchain/native/payment"
	"escrowchain/storage"
)

type recordingSink struct {
	heights []uint64
	events  []types.Event
}

func (s *recordingSink) Append(_ context.Context, height uint64, evts []types.Event) error {
	for range evts {
		s.heights = append(s.heights, height)
	}
	s.events = append(s.events, evts...)
	return nil
}

func (s *recordingSink) eventTypes() []string {
	out := make([]string, 0, len(s.events))
	for _, evt := range s.events {
		out = append(out, evt.Type)
	}
	return out
}

func testAccount(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	alice    = testAccount(0x01)
	bob      = testAccount(0x02)
	resolver = testAccount(0x0F)
)

func newTestRuntime(t *testing.T, db storage.Database, opts ...Option) (*Runtime, *recordingSink) {
	t.Helper()
	params := payment.DefaultParams()
	params.Resolver = resolver
	sink := &recordingSink{}
	rt, err := NewRuntime(db, params, append(opts, WithEventSink(sink))...)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	err = rt.Genesis(context.Background(),
		[]state.AssetMetadata{{Symbol: "USDC", Name: "USD Coin", Decimals: 6}},
		[]GenesisBalance{{Account: alice, Asset: "USDC", Amount: big.NewInt(100)}})
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return rt, sink
}

func balanceOf(t *testing.T, rt *Runtime, who [20]byte) *types.Balance {
	t.Helper()
	bal, err := rt.Balance("USDC", who)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func advanceTo(t *testing.T, rt *Runtime, height uint64) {
	t.Helper()
	for rt.Height() < height {
		if _, err := rt.EndBlock(context.Background()); err != nil {
			t.Fatalf("end block %d: %v", rt.Height(), err)
		}
	}
}

func TestRuntimeDisputedRefundResolvedInFull(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, sink := newTestRuntime(t, db)
	ctx := context.Background()

	block := rt.ProcessBlock(ctx, []Call{
		Pay(alice, bob, "USDC", big.NewInt(80), nil),
		RequestRefund(alice, bob),
	})
	if block.Height != 1 {
		t.Fatalf("expected first block at height 1, got %d", block.Height)
	}
	for _, res := range block.Calls {
		if res.Err != nil {
			t.Fatalf("%s: %v", res.Operation, res.Err)
		}
	}
	refund := block.Calls[1].Events[0]
	if refund.Type != events.TypePaymentRefundRequested || refund.Attributes["expiry"] != "601" {
		t.Fatalf("unexpected refund event: %+v", refund)
	}

	advanceTo(t, rt, 300)
	if _, err := rt.Submit(ctx, DisputeRefund(bob, alice)); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	advanceTo(t, rt, 700)
	if bal := balanceOf(t, rt, alice); bal.Reserved.Int64() != 80 {
		t.Fatalf("funds must stay locked after dispute, got %+v", bal)
	}
	if _, err := rt.Submit(ctx, ResolvePayment(resolver, alice, bob, payment.MaxPercent)); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if bal := balanceOf(t, rt, bob); bal.Free.Int64() != 80 {
		t.Fatalf("recipient expected 80, got %+v", bal)
	}
	if bal := balanceOf(t, rt, alice); bal.Free.Int64() != 20 || bal.Reserved.Sign() != 0 {
		t.Fatalf("payer expected 20 free, got %+v", bal)
	}
	if _, err := rt.Payment(alice, bob); !errors.Is(err, payment.ErrNotFound) {
		t.Fatalf("expected payment removed, got %v", err)
	}
	tasks, err := rt.ScheduledTasks()
	if err != nil || len(tasks) != 0 {
		t.Fatalf("expected empty registry, got %d %v", len(tasks), err)
	}
	want := []string{
		events.TypePaymentCreated,
		events.TypePaymentRefundRequested,
		events.TypePaymentRefundDisputed,
		events.TypePaymentResolved,
	}
	got := sink.eventTypes()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestRuntimeAutoCancelAtExpiry(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, sink := newTestRuntime(t, db)
	ctx := context.Background()

	rt.ProcessBlock(ctx, []Call{Pay(alice, bob, "USDC", big.NewInt(80), nil), RequestRefund(alice, bob)})
	advanceTo(t, rt, 601)
	if bal := balanceOf(t, rt, alice); bal.Reserved.Int64() != 80 {
		t.Fatalf("refund must not execute before its expiry, got %+v", bal)
	}
	summary, err := rt.EndBlock(ctx)
	if err != nil {
		t.Fatalf("end block: %v", err)
	}
	if summary.Height != 601 || summary.Cancelled != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if bal := balanceOf(t, rt, alice); bal.Free.Int64() != 100 || bal.Reserved.Sign() != 0 {
		t.Fatalf("payer expected full refund, got %+v", bal)
	}
	last := sink.events[len(sink.events)-1]
	if last.Type != events.TypePaymentCancelled || last.Attributes["trigger"] != "scheduler" {
		t.Fatalf("unexpected last event: %+v", last)
	}
	if sink.heights[len(sink.heights)-1] != 601 {
		t.Fatalf("expected cancel journalled at 601, got %d", sink.heights[len(sink.heights)-1])
	}
}

func TestRuntimeDisputeInExpiryBlockWins(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, _ := newTestRuntime(t, db)
	ctx := context.Background()

	rt.ProcessBlock(ctx, []Call{Pay(alice, bob, "USDC", big.NewInt(80), nil), RequestRefund(alice, bob)})
	advanceTo(t, rt, 601)
	block := rt.ProcessBlock(ctx, []Call{DisputeRefund(bob, alice)})
	if block.Calls[0].Err != nil {
		t.Fatalf("dispute: %v", block.Calls[0].Err)
	}
	if block.Tick.Cancelled != 0 {
		t.Fatalf("tick must observe the dispute, got %+v", block.Tick)
	}
	p, err := rt.Payment(alice, bob)
	if err != nil || p.State != payment.StateDisputed {
		t.Fatalf("expected disputed payment, got %+v %v", p, err)
	}
}

func TestRuntimeFailedCallLeavesNoTrace(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, sink := newTestRuntime(t, db)
	before := db.Len()

	res, err := rt.Submit(context.Background(), Pay(alice, bob, "USDC", big.NewInt(101), nil))
	if payment.Kind(err) != payment.KindInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if len(res.Events) != 0 || len(sink.events) != 0 {
		t.Fatalf("failed call must not publish events")
	}
	if db.Len() != before {
		t.Fatalf("failed call wrote to the database")
	}
	if bal := balanceOf(t, rt, alice); bal.Free.Int64() != 100 {
		t.Fatalf("balance changed: %+v", bal)
	}

	if _, err := rt.Submit(context.Background(), Call{Operation: "bogus"}); err == nil {
		t.Fatalf("expected empty call to fail")
	}
}

func TestRuntimeBlockIsolatesFailures(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, _ := newTestRuntime(t, db)

	block := rt.ProcessBlock(context.Background(), []Call{
		Release(alice, bob),
		Pay(alice, bob, "USDC", big.NewInt(30), []byte("order 9")),
		Pay(alice, bob, "USDC", big.NewInt(30), nil),
	})
	if !errors.Is(block.Calls[0].Err, payment.ErrNotFound) {
		t.Fatalf("expected release to fail NotFound, got %v", block.Calls[0].Err)
	}
	if block.Calls[1].Err != nil {
		t.Fatalf("pay: %v", block.Calls[1].Err)
	}
	if !errors.Is(block.Calls[2].Err, payment.ErrPaymentExists) {
		t.Fatalf("expected duplicate pay to fail, got %v", block.Calls[2].Err)
	}
	if rt.Height() != 2 {
		t.Fatalf("expected height 2, got %d", rt.Height())
	}
}

func TestRuntimePausedStillExecutesRefunds(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	pauses := common.NewPauses(nil)
	rt, _ := newTestRuntime(t, db, WithPauses(pauses))
	ctx := context.Background()

	rt.ProcessBlock(ctx, []Call{Pay(alice, bob, "USDC", big.NewInt(10), nil), RequestRefund(alice, bob)})
	pauses.Set(payment.ModuleName, true)
	if _, err := rt.Submit(ctx, DisputeRefund(bob, alice)); payment.Kind(err) != payment.KindPaused {
		t.Fatalf("expected paused, got %v", err)
	}
	advanceTo(t, rt, 602)
	if bal := balanceOf(t, rt, alice); bal.Free.Int64() != 100 {
		t.Fatalf("expected refund while paused, got %+v", bal)
	}
}

func TestRuntimeResumesFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewLevelDB(path)
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	rt, _ := newTestRuntime(t, db)
	rt.ProcessBlock(context.Background(), []Call{Pay(alice, bob, "USDC", big.NewInt(25), nil)})
	advanceTo(t, rt, 5)
	db.Close()

	db, err = storage.NewLevelDB(path)
	if err != nil {
		t.Fatalf("reopen leveldb: %v", err)
	}
	defer db.Close()
	rt, _ = newTestRuntime(t, db)
	if rt.Height() != 5 {
		t.Fatalf("expected height 5 after restart, got %d", rt.Height())
	}
	if bal := balanceOf(t, rt, alice); bal.Free.Int64() != 75 || bal.Reserved.Int64() != 25 {
		t.Fatalf("genesis must not re-run, got %+v", bal)
	}
	p, err := rt.Payment(alice, bob)
	if err != nil || p.Amount.Int64() != 25 {
		t.Fatalf("expected payment to survive restart, got %+v %v", p, err)
	}
}

func TestRuntimeFailingScheduledTaskIsSkipped(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, sink := newTestRuntime(t, db)
	ctx := context.Background()
	carol := testAccount(0x03)

	block := rt.ProcessBlock(ctx, []Call{
		Pay(alice, bob, "USDC", big.NewInt(40), nil),
		Pay(alice, carol, "USDC", big.NewInt(40), nil),
		RequestRefund(alice, bob),
		RequestRefund(alice, carol),
	})
	for _, res := range block.Calls {
		if res.Err != nil {
			t.Fatalf("%s: %v", res.Operation, res.Err)
		}
	}
	// Only enough is reserved for the first refund in execution order.
	if err := rt.state.SetBalance("USDC", alice, &types.Balance{Free: big.NewInt(20), Reserved: big.NewInt(40)}); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := rt.state.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	advanceTo(t, rt, 601)
	summary, err := rt.EndBlock(ctx)
	if err != nil {
		t.Fatalf("end block: %v", err)
	}
	if summary.Cancelled != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if _, err := rt.Payment(alice, bob); !errors.Is(err, payment.ErrNotFound) {
		t.Fatalf("expected bob's payment cancelled, got %v", err)
	}
	p, err := rt.Payment(alice, carol)
	if err != nil || p.State != payment.StateRefundRequested {
		t.Fatalf("failed entry must be rolled back, got %+v %v", p, err)
	}
	if bal := balanceOf(t, rt, alice); bal.Free.Int64() != 60 || bal.Reserved.Sign() != 0 {
		t.Fatalf("unexpected payer balance %+v", bal)
	}
	cancels := 0
	for _, evt := range sink.events {
		if evt.Type == events.TypePaymentCancelled {
			cancels++
			if evt.Attributes["to"] != crypto.FormatAccount(bob) {
				t.Fatalf("rolled back cancel was published: %+v", evt)
			}
		}
	}
	if cancels != 1 {
		t.Fatalf("expected one cancel event, got %d", cancels)
	}

	// The failing entry is retried but no longer blocks the chain.
	summary, err = rt.EndBlock(ctx)
	if err != nil || summary.Failed != 1 || rt.Height() != 603 {
		t.Fatalf("expected retry at 602, got %+v %v height %d", summary, err, rt.Height())
	}
	if _, err := rt.Submit(ctx, DisputeRefund(carol, alice)); err != nil {
		t.Fatalf("dispute after failed cancel: %v", err)
	}
	tasks, err := rt.ScheduledTasks()
	if err != nil || len(tasks) != 0 {
		t.Fatalf("expected empty registry, got %d %v", len(tasks), err)
	}
}

func TestRuntimeGenesisRegistersNewAssetsOnRestart(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, _ := newTestRuntime(t, db)
	ctx := context.Background()

	err := rt.Genesis(ctx,
		[]state.AssetMetadata{
			{Symbol: "USDC", Name: "USD Coin", Decimals: 6},
			{Symbol: "EURC", Name: "Euro Coin", Decimals: 6},
		},
		[]GenesisBalance{{Account: alice, Asset: "EURC", Amount: big.NewInt(50)}})
	if err != nil {
		t.Fatalf("second genesis: %v", err)
	}
	assetList, err := rt.Assets()
	if err != nil {
		t.Fatalf("assets: %v", err)
	}
	found := false
	for _, symbol := range assetList {
		if symbol == "EURC" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected EURC registered, got %v", assetList)
	}
	bal, err := rt.Balance("EURC", alice)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Free.Sign() != 0 {
		t.Fatalf("genesis balances must only be credited once, got %+v", bal)
	}
	_, err = rt.Submit(ctx, Pay(alice, bob, "EURC", big.NewInt(1), nil))
	if payment.Kind(err) != payment.KindInsufficientFunds {
		t.Fatalf("expected a known asset without funds, got %v", err)
	}
}

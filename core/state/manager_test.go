package state

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowchain/core/types"
	"escrowchain/native/payment"
	"escrowchain/storage"
)

func testAccount(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db), db
}

func TestManagerBuffersUntilCommit(t *testing.T) {
	mgr, db := newTestManager(t)

	require.NoError(t, mgr.SetHeight(7))
	require.Equal(t, 1, mgr.Pending())
	require.Equal(t, 0, db.Len())

	height, err := mgr.Height()
	require.NoError(t, err)
	require.Equal(t, uint64(7), height)

	require.NoError(t, mgr.Commit())
	require.Equal(t, 0, mgr.Pending())
	require.Equal(t, 1, db.Len())

	reopened := NewManager(db)
	height, err = reopened.Height()
	require.NoError(t, err)
	require.Equal(t, uint64(7), height)
}

func TestManagerDiscardDropsWrites(t *testing.T) {
	mgr, db := newTestManager(t)
	require.NoError(t, mgr.SetHeight(3))
	require.NoError(t, mgr.Commit())

	require.NoError(t, mgr.SetHeight(9))
	require.NoError(t, mgr.KVDelete(heightKey))
	ok, err := mgr.KVGet(heightKey, nil)
	require.NoError(t, err)
	require.False(t, ok)

	mgr.Discard()
	height, err := mgr.Height()
	require.NoError(t, err)
	require.Equal(t, uint64(3), height)
	require.Equal(t, 1, db.Len())
}

func TestKVRejectsEmptyKey(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.Error(t, mgr.KVPut(nil, uint64(1)))
	_, err := mgr.KVGet(nil, nil)
	require.Error(t, err)
}

func TestPaymentStoreRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	payer, recipient := testAccount(1), testAccount(2)

	_, ok, err := mgr.PaymentGet(payer, recipient)
	require.NoError(t, err)
	require.False(t, ok)

	p := &payment.Payment{
		Payer:     payer,
		Recipient: recipient,
		Asset:     "usdc",
		Amount:    big.NewInt(80),
		State:     payment.StateRefundRequested,
		Resolver:  testAccount(9),
		Remark:    []byte("order-1"),
		CreatedAt: 12,
	}
	require.NoError(t, mgr.PaymentPut(p))
	require.NoError(t, mgr.Commit())

	got, ok, err := mgr.PaymentGet(payer, recipient)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "USDC", got.Asset)
	require.Equal(t, 0, got.Amount.Cmp(big.NewInt(80)))
	require.Equal(t, payment.StateRefundRequested, got.State)
	require.Equal(t, testAccount(9), got.Resolver)
	require.Equal(t, []byte("order-1"), got.Remark)
	require.Equal(t, uint64(12), got.CreatedAt)

	_, ok, err = mgr.PaymentGet(recipient, payer)
	require.NoError(t, err)
	require.False(t, ok, "pairs are ordered")

	require.NoError(t, mgr.PaymentDelete(payer, recipient))
	_, ok, err = mgr.PaymentGet(payer, recipient)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPaymentPutRejectsInvalid(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.PaymentPut(&payment.Payment{Payer: testAccount(1), Recipient: testAccount(2), Asset: "USDC", Amount: big.NewInt(0)})
	require.ErrorIs(t, err, payment.ErrInvalidAmount)
}

func TestTaskRegistryOrdering(t *testing.T) {
	mgr, _ := newTestManager(t)
	entries := []*payment.ScheduledTask{
		{Payer: testAccount(3), Recipient: testAccount(4), When: 20},
		{Payer: testAccount(2), Recipient: testAccount(5), When: 10},
		{Payer: testAccount(1), Recipient: testAccount(6), When: 20},
	}
	for _, e := range entries {
		require.NoError(t, mgr.ScheduledTaskPut(e))
	}

	list, err := mgr.ScheduledTasks()
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, uint64(10), list[0].When)
	require.Equal(t, testAccount(1), list[1].Payer)
	require.Equal(t, testAccount(3), list[2].Payer)

	// Replacing keeps one entry per pair.
	require.NoError(t, mgr.ScheduledTaskPut(&payment.ScheduledTask{Payer: testAccount(3), Recipient: testAccount(4), When: 5}))
	list, err = mgr.ScheduledTasks()
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, testAccount(3), list[0].Payer)

	removed, err := mgr.ScheduledTaskDelete(testAccount(3), testAccount(4))
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = mgr.ScheduledTaskDelete(testAccount(3), testAccount(4))
	require.NoError(t, err)
	require.False(t, removed)

	task, ok, err := mgr.ScheduledTaskGet(testAccount(2), testAccount(5))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payment.TaskCancel, task.Task)
}

func TestBalances(t *testing.T) {
	mgr, db := newTestManager(t)
	acct := testAccount(1)

	bal, err := mgr.Balance("USDC", acct)
	require.NoError(t, err)
	require.Equal(t, 0, bal.Total().Sign())

	require.NoError(t, mgr.SetBalance("USDC", acct, &types.Balance{Free: big.NewInt(20), Reserved: big.NewInt(80)}))
	require.NoError(t, mgr.Commit())
	bal, err = mgr.Balance("USDC", acct)
	require.NoError(t, err)
	require.Equal(t, int64(20), bal.Free.Int64())
	require.Equal(t, int64(80), bal.Reserved.Int64())

	other, err := mgr.Balance("DOT", acct)
	require.NoError(t, err)
	require.Equal(t, 0, other.Total().Sign())

	require.Error(t, mgr.SetBalance("USDC", acct, &types.Balance{Free: big.NewInt(-1)}))

	require.NoError(t, mgr.SetBalance("USDC", acct, types.NewBalance()))
	require.NoError(t, mgr.Commit())
	require.Equal(t, 0, db.Len())
}

func TestAssetRegistry(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.RegisterAsset("usdc", "USD Coin", 6))
	require.NoError(t, mgr.RegisterAsset("DOT", "Polkadot", 10))
	require.Error(t, mgr.RegisterAsset("USDC", "dup", 6))
	require.Error(t, mgr.RegisterAsset(" ", "blank", 0))

	list, err := mgr.AssetList()
	require.NoError(t, err)
	require.Equal(t, []string{"DOT", "USDC"}, list)

	meta, err := mgr.Asset("usdc")
	require.NoError(t, err)
	require.Equal(t, uint8(6), meta.Decimals)
	require.True(t, mgr.AssetExists("DOT"))
	require.False(t, mgr.AssetExists("KSM"))
}

func TestManagerSnapshotRevert(t *testing.T) {
	mgr, db := newTestManager(t)
	account := testAccount(0x01)

	require.NoError(t, mgr.SetHeight(3))
	outer := mgr.Snapshot()
	require.NoError(t, mgr.SetBalance("USDC", account, &types.Balance{Free: big.NewInt(5), Reserved: big.NewInt(0)}))
	inner := mgr.Snapshot()
	require.NoError(t, mgr.SetHeight(4))

	mgr.RevertToSnapshot(inner)
	height, err := mgr.Height()
	require.NoError(t, err)
	require.Equal(t, uint64(3), height)
	bal, err := mgr.Balance("USDC", account)
	require.NoError(t, err)
	require.Equal(t, int64(5), bal.Free.Int64())

	mgr.RevertToSnapshot(outer)
	bal, err = mgr.Balance("USDC", account)
	require.NoError(t, err)
	require.Zero(t, bal.Free.Sign())
	require.Panics(t, func() { mgr.RevertToSnapshot(inner) })

	require.NoError(t, mgr.Commit())
	require.Equal(t, 1, db.Len())
}

func TestManagerReleaseSnapshotKeepsWrites(t *testing.T) {
	mgr, _ := newTestManager(t)

	id := mgr.Snapshot()
	require.NoError(t, mgr.SetHeight(9))
	mgr.ReleaseSnapshot(id)
	require.Panics(t, func() { mgr.RevertToSnapshot(id) })

	height, err := mgr.Height()
	require.NoError(t, err)
	require.Equal(t, uint64(9), height)

	mgr.Snapshot()
	mgr.Discard()
	require.Panics(t, func() { mgr.RevertToSnapshot(0) })
}

package state

import (
	"errors"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"escrowchain/storage"
)

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Manager reads state from the backing database and buffers every write in
// an overlay until Commit flushes it as one atomic batch. Discard drops the
// overlay, leaving the database untouched. Manager is not safe for
// concurrent use; the runtime serialises access.
type Manager struct {
	db        storage.Database
	dirty     map[string]pendingWrite
	snapshots []map[string]pendingWrite
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string]pendingWrite)}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	hashed := kvKey(key)
	if w, ok := m.dirty[string(hashed)]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return w.value, true, nil
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (m *Manager) put(key []byte, value []byte) {
	m.dirty[string(kvKey(key))] = pendingWrite{value: append([]byte(nil), value...)}
}

func (m *Manager) del(key []byte) {
	m.dirty[string(kvKey(key))] = pendingWrite{deleted: true}
}

// KVPut stores the RLP encoding of value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.put(key, encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.get(key)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes key from state.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.del(key)
	return nil
}

// Pending reports the number of buffered writes.
func (m *Manager) Pending() int { return len(m.dirty) }

// Commit flushes all buffered writes to the database in a single batch.
func (m *Manager) Commit() error {
	if len(m.dirty) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := m.db.NewBatch()
	for _, k := range keys {
		w := m.dirty[k]
		if w.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), w.value)
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.dirty = make(map[string]pendingWrite)
	m.snapshots = nil
	return nil
}

// Discard drops every buffered write.
func (m *Manager) Discard() {
	m.dirty = make(map[string]pendingWrite)
	m.snapshots = nil
}

// Snapshot marks the current overlay so later writes can be undone with
// RevertToSnapshot. Snapshots do not survive Commit or Discard.
func (m *Manager) Snapshot() int {
	copied := make(map[string]pendingWrite, len(m.dirty))
	for k, w := range m.dirty {
		copied[k] = w
	}
	m.snapshots = append(m.snapshots, copied)
	return len(m.snapshots) - 1
}

// RevertToSnapshot restores the overlay taken by Snapshot id and invalidates
// every later snapshot.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id >= len(m.snapshots) {
		panic(fmt.Sprintf("state: snapshot %d cannot be reverted", id))
	}
	m.dirty = m.snapshots[id]
	m.snapshots = m.snapshots[:id]
}

// ReleaseSnapshot keeps the writes made since snapshot id and forgets it
// together with every later snapshot.
func (m *Manager) ReleaseSnapshot(id int) {
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	m.snapshots = m.snapshots[:id]
}

// Height returns the last processed block height.
func (m *Manager) Height() (uint64, error) {
	var height uint64
	if _, err := m.KVGet(heightKey, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// SetHeight records the last processed block height.
func (m *Manager) SetHeight(height uint64) error {
	return m.KVPut(heightKey, height)
}

// GenesisApplied reports whether the one-off genesis allocation has run.
func (m *Manager) GenesisApplied() (bool, error) {
	return m.KVGet(genesisKey, nil)
}

// MarkGenesisApplied records that genesis allocations have been written.
func (m *Manager) MarkGenesisApplied() error {
	return m.KVPut(genesisKey, true)
}

package state

import (
	"bytes"
	"fmt"
	"sort"

	"escrowchain/native/payment"
)

type storedTask struct {
	Payer     [20]byte
	Recipient [20]byte
	Task      uint8
	When      uint64
}

// The registry is bounded, so it is kept as one sorted list under a single
// key and the executor reads it with one lookup per tick.
func (m *Manager) loadTasks() ([]storedTask, error) {
	var list []storedTask
	if _, err := m.KVGet(taskIndexKey, &list); err != nil {
		return nil, fmt.Errorf("state: decode task registry: %w", err)
	}
	return list, nil
}

func (m *Manager) writeTasks(list []storedTask) error {
	if len(list) == 0 {
		return m.KVDelete(taskIndexKey)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].When != list[j].When {
			return list[i].When < list[j].When
		}
		if c := bytes.Compare(list[i].Payer[:], list[j].Payer[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(list[i].Recipient[:], list[j].Recipient[:]) < 0
	})
	return m.KVPut(taskIndexKey, list)
}

func taskIndex(list []storedTask, payer, recipient [20]byte) int {
	for i := range list {
		if list[i].Payer == payer && list[i].Recipient == recipient {
			return i
		}
	}
	return -1
}

func (t storedTask) toTask() *payment.ScheduledTask {
	return &payment.ScheduledTask{
		Payer:     t.Payer,
		Recipient: t.Recipient,
		Task:      payment.Task(t.Task),
		When:      t.When,
	}
}

// ScheduledTaskGet returns the registry entry for the pair.
func (m *Manager) ScheduledTaskGet(payer, recipient [20]byte) (*payment.ScheduledTask, bool, error) {
	list, err := m.loadTasks()
	if err != nil {
		return nil, false, err
	}
	idx := taskIndex(list, payer, recipient)
	if idx < 0 {
		return nil, false, nil
	}
	return list[idx].toTask(), true, nil
}

// ScheduledTaskPut inserts or replaces the entry for the task's pair.
func (m *Manager) ScheduledTaskPut(task *payment.ScheduledTask) error {
	if task == nil {
		return fmt.Errorf("state: nil scheduled task")
	}
	if !task.Task.Valid() {
		return fmt.Errorf("state: invalid task kind %d", task.Task)
	}
	list, err := m.loadTasks()
	if err != nil {
		return err
	}
	entry := storedTask{Payer: task.Payer, Recipient: task.Recipient, Task: uint8(task.Task), When: task.When}
	if idx := taskIndex(list, task.Payer, task.Recipient); idx >= 0 {
		list[idx] = entry
	} else {
		list = append(list, entry)
	}
	return m.writeTasks(list)
}

// ScheduledTaskDelete removes the entry for the pair, reporting whether one
// existed.
func (m *Manager) ScheduledTaskDelete(payer, recipient [20]byte) (bool, error) {
	list, err := m.loadTasks()
	if err != nil {
		return false, err
	}
	idx := taskIndex(list, payer, recipient)
	if idx < 0 {
		return false, nil
	}
	list = append(list[:idx], list[idx+1:]...)
	return true, m.writeTasks(list)
}

// ScheduledTasks returns all entries ordered by (when, payer, recipient).
func (m *Manager) ScheduledTasks() ([]*payment.ScheduledTask, error) {
	list, err := m.loadTasks()
	if err != nil {
		return nil, err
	}
	out := make([]*payment.ScheduledTask, 0, len(list))
	for _, t := range list {
		out = append(out, t.toTask())
	}
	return out, nil
}

package payment

import (
	"fmt"
	"log/slog"

	"escrowchain/core/events"
	"escrowchain/crypto"
)

// TickSummary reports what a single executor pass did.
type TickSummary struct {
	Height    uint64
	Cancelled int
	Discarded int
	// Failed counts due entries whose cancel was rolled back. They stay in
	// the registry and are retried on the next tick.
	Failed  int
	Pending int
}

// ProcessTasks executes every registry entry due at now. Entries whose
// payment is still RefundRequested are cancelled back to the payer; any other
// entry is stale and dropped. Due entries run in (when, payer, recipient)
// order. The pause guard does not apply so refunds keep flowing while user
// operations are halted. When the state supports snapshots a failing entry is
// rolled back, logged and skipped; otherwise the failure aborts the pass.
func (e *Engine) ProcessTasks(now uint64) (TickSummary, error) {
	summary := TickSummary{Height: now}
	if err := e.ready(); err != nil {
		return summary, err
	}
	tasks, err := e.state.ScheduledTasks()
	if err != nil {
		return summary, err
	}
	for _, task := range tasks {
		if !task.Due(now) {
			summary.Pending++
			continue
		}
		undo, keep, isolated := e.checkpoint()
		cancelled, err := e.runTask(task)
		if err != nil {
			err = fmt.Errorf("payment: scheduled %s for %s -> %s: %w",
				task.Task, crypto.FormatAccount(task.Payer), crypto.FormatAccount(task.Recipient), err)
			if !isolated {
				return summary, err
			}
			undo()
			summary.Failed++
			e.logger.Warn("scheduled task failed",
				slog.String("payer", crypto.FormatAccount(task.Payer)),
				slog.String("recipient", crypto.FormatAccount(task.Recipient)),
				slog.Uint64("when", task.When),
				slog.Any("error", err))
			continue
		}
		if isolated {
			keep()
		}
		if cancelled {
			summary.Cancelled++
		} else {
			summary.Discarded++
		}
	}
	return summary, nil
}

// checkpoint captures state and emitted events so one entry can be undone.
// keep releases the checkpoint once the entry succeeded.
func (e *Engine) checkpoint() (undo, keep func(), ok bool) {
	snap, ok := e.state.(snapshotter)
	if !ok {
		return nil, nil, false
	}
	id := snap.Snapshot()
	emitted := -1
	if buf, ok := e.emitter.(truncater); ok {
		emitted = buf.Len()
	}
	undo = func() {
		snap.RevertToSnapshot(id)
		if buf, ok := e.emitter.(truncater); ok && emitted >= 0 {
			buf.Truncate(emitted)
		}
	}
	keep = func() { snap.ReleaseSnapshot(id) }
	return undo, keep, true
}

func (e *Engine) runTask(task *ScheduledTask) (bool, error) {
	p, ok, err := e.state.PaymentGet(task.Payer, task.Recipient)
	if err != nil {
		return false, err
	}
	if !ok || p == nil || p.State != StateRefundRequested || task.Task != TaskCancel {
		e.logger.Debug("discarding stale scheduled task",
			slog.String("payer", crypto.FormatAccount(task.Payer)),
			slog.String("recipient", crypto.FormatAccount(task.Recipient)),
			slog.Uint64("when", task.When))
		return false, e.dropTask(task.Payer, task.Recipient)
	}
	if err := e.cancel(p); err != nil {
		return false, err
	}
	e.emit(events.PaymentCancelled{From: task.Payer, To: task.Recipient, Scheduled: true})
	return true, nil
}

// RemoveTask prunes an orphaned registry entry. Entries that still guard a
// RefundRequested payment are rejected; disputing or resolving the payment
// removes those.
func (e *Engine) RemoveTask(payer, recipient [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, ok, err := e.state.ScheduledTaskGet(payer, recipient); err != nil {
		return err
	} else if !ok {
		return ErrTaskNotFound
	}
	p, ok, err := e.state.PaymentGet(payer, recipient)
	if err != nil {
		return err
	}
	if ok && p != nil && p.State == StateRefundRequested {
		return ErrTaskActive
	}
	if err := e.dropTask(payer, recipient); err != nil {
		return err
	}
	e.emit(events.ScheduledTaskRemoved{From: payer, To: recipient})
	return nil
}

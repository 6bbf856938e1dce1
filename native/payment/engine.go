package payment

import (
	"fmt"
	"log/slog"
	"math/big"

	"escrowchain/core/events"
	"escrowchain/native/common"
)

// ModuleName is the identifier consulted by the pause guard.
const ModuleName = "payment"

const (
	DefaultRefundWindow      uint64 = 600
	DefaultMaxRemarkLength          = 50
	DefaultMaxScheduledTasks        = 1000
)

type engineState interface {
	PaymentGet(payer, recipient [20]byte) (*Payment, bool, error)
	PaymentPut(*Payment) error
	PaymentDelete(payer, recipient [20]byte) error
	ScheduledTaskGet(payer, recipient [20]byte) (*ScheduledTask, bool, error)
	ScheduledTaskPut(*ScheduledTask) error
	ScheduledTaskDelete(payer, recipient [20]byte) (bool, error)
	ScheduledTasks() ([]*ScheduledTask, error)
}

// snapshotter is implemented by state that can undo writes made since a
// snapshot. The executor uses it to skip a failing entry without losing the
// rest of the tick.
type snapshotter interface {
	Snapshot() int
	RevertToSnapshot(id int)
	ReleaseSnapshot(id int)
}

// truncater is implemented by emitters that can drop recently emitted events.
type truncater interface {
	Len() int
	Truncate(n int)
}

// Ledger is the asset capability used to move funds. Implementations must
// leave balances untouched when they return an error.
type Ledger interface {
	Lock(asset string, account [20]byte, amount *big.Int) error
	TransferLocked(asset string, from, to [20]byte, amount *big.Int) error
	Unlock(asset string, account [20]byte, amount *big.Int) error
}

// Params bundles the engine constants.
type Params struct {
	RefundWindow      uint64
	MaxRemarkLength   int
	MaxScheduledTasks int
	// Resolver is stamped on every payment at creation time.
	Resolver [20]byte
}

// DefaultParams returns the default constants with no resolver configured.
func DefaultParams() Params {
	return Params{
		RefundWindow:      DefaultRefundWindow,
		MaxRemarkLength:   DefaultMaxRemarkLength,
		MaxScheduledTasks: DefaultMaxScheduledTasks,
	}
}

// Engine implements the escrow payment state machine, the payment-request
// sub-flow and the deferred-action executor. The engine itself is not
// transactional: callers run each operation inside a unit that discards
// state writes and buffered events when an error is returned.
type Engine struct {
	state    engineState
	ledger   Ledger
	emitter  events.Emitter
	pauses   common.PauseView
	params   Params
	heightFn func() uint64
	logger   *slog.Logger
}

// NewEngine creates a payment engine with a no-op emitter. State and ledger
// must be configured before use.
func NewEngine(params Params) *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		params:   params,
		heightFn: func() uint64 { return 0 },
		logger:   slog.Default(),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the asset ledger used to move funds.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetPauses wires the pause view consulted before user operations.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetHeightFunc overrides the block height source.
func (e *Engine) SetHeightFunc(height func() uint64) {
	if height == nil {
		e.heightFn = func() uint64 { return 0 }
		return
	}
	e.heightFn = height
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// Params returns the configured constants.
func (e *Engine) Params() Params { return e.params }

// Payment returns a copy of the live payment for the pair.
func (e *Engine) Payment(payer, recipient [20]byte) (*Payment, error) {
	p, err := e.loadPayment(payer, recipient)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// ScheduledTasks returns the registry entries ordered by (when, payer, recipient).
func (e *Engine) ScheduledTasks() ([]*ScheduledTask, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.ScheduledTasks()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) height() uint64 {
	if e == nil || e.heightFn == nil {
		return 0
	}
	return e.heightFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

// guard runs the readiness and pause checks shared by every user operation.
func (e *Engine) guard() error {
	if err := e.ready(); err != nil {
		return err
	}
	return common.Guard(e.pauses, ModuleName)
}

func (e *Engine) loadPayment(payer, recipient [20]byte) (*Payment, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	p, ok, err := e.state.PaymentGet(payer, recipient)
	if err != nil {
		return nil, err
	}
	if !ok || p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

func (e *Engine) validateTerms(payer, recipient [20]byte, asset string, amount *big.Int) (string, error) {
	if payer == recipient {
		return "", ErrSelfPayment
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return "", err
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", ErrInvalidAmount
	}
	if e.params.Resolver == ([20]byte{}) {
		return "", errResolverNotConfigured
	}
	return normalized, nil
}

func (e *Engine) ensureVacant(payer, recipient [20]byte) error {
	_, ok, err := e.state.PaymentGet(payer, recipient)
	if err != nil {
		return err
	}
	if ok {
		return ErrPaymentExists
	}
	return nil
}

// dropTask removes any registry entry for the pair. Missing entries are fine.
func (e *Engine) dropTask(payer, recipient [20]byte) error {
	if _, err := e.state.ScheduledTaskDelete(payer, recipient); err != nil {
		return fmt.Errorf("payment: delete scheduled task: %w", err)
	}
	return nil
}

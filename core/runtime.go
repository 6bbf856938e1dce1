package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"escrowchain/core/events"
	"escrowchain/core/state"
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/assets"
	"escrowchain/native/common"
	"escrowchain/native/payment"
	"escrowchain/observability"
	obsotel "escrowchain/observability/otel"
	"escrowchain/storage"
)

// EventSink receives the events of every committed unit. Sink failures are
// logged; they never roll back committed state.
type EventSink interface {
	Append(ctx context.Context, height uint64, evts []types.Event) error
}

// Runtime is the single writer over escrow state. Every operation runs as
// one atomic unit: state writes are buffered and committed together with the
// unit's events only when the operation succeeds.
type Runtime struct {
	mu sync.Mutex

	state  *state.Manager
	ledger *assets.Ledger
	engine *payment.Engine
	buffer *events.Buffer
	height uint64

	sinks  []EventSink
	logger *slog.Logger
	tracer trace.Tracer
}

// Option customises a Runtime.
type Option func(*Runtime)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithEventSink(sink EventSink) Option {
	return func(r *Runtime) {
		if sink != nil {
			r.sinks = append(r.sinks, sink)
		}
	}
}

func WithPauses(p common.PauseView) Option {
	return func(r *Runtime) { r.engine.SetPauses(p) }
}

// NewRuntime opens the runtime over db, resuming from the persisted height.
// A fresh database starts at height 1.
func NewRuntime(db storage.Database, params payment.Params, opts ...Option) (*Runtime, error) {
	if db == nil {
		return nil, fmt.Errorf("runtime: database required")
	}
	mgr := state.NewManager(db)
	r := &Runtime{
		state:  mgr,
		ledger: assets.NewLedger(mgr),
		engine: payment.NewEngine(params),
		buffer: &events.Buffer{},
		logger: slog.Default(),
		tracer: obsotel.Tracer("runtime"),
	}
	r.engine.SetState(mgr)
	r.engine.SetLedger(r.ledger)
	r.engine.SetEmitter(r.buffer)
	r.engine.SetHeightFunc(func() uint64 { return r.height })
	for _, opt := range opts {
		opt(r)
	}
	r.engine.SetLogger(r.logger)

	height, err := mgr.Height()
	if err != nil {
		return nil, fmt.Errorf("runtime: load height: %w", err)
	}
	if height == 0 {
		height = 1
		if err := mgr.SetHeight(height); err != nil {
			return nil, err
		}
		if err := mgr.Commit(); err != nil {
			return nil, err
		}
	}
	r.height = height
	return r, nil
}

// Height returns the block height user operations currently apply at.
func (r *Runtime) Height() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.height
}

// Params returns the engine constants.
func (r *Runtime) Params() payment.Params { return r.engine.Params() }

// Submit applies a single call as its own atomic unit at the current height.
func (r *Runtime) Submit(ctx context.Context, call Call) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.apply(ctx, call.Operation, call.apply)
	return res, res.Err
}

// BlockResult summarises ProcessBlock.
type BlockResult struct {
	Height  uint64
	Calls   []*Result
	Tick    payment.TickSummary
	TickErr error
}

// ProcessBlock applies calls in order at the current height, then runs the
// scheduled-task scan for that height and advances to the next block. A
// failed call does not affect the others.
func (r *Runtime) ProcessBlock(ctx context.Context, calls []Call) BlockResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := BlockResult{Height: r.height, Calls: make([]*Result, 0, len(calls))}
	for _, call := range calls {
		out.Calls = append(out.Calls, r.apply(ctx, call.Operation, call.apply))
	}
	out.Tick, out.TickErr = r.endBlock(ctx)
	return out
}

// EndBlock runs the scheduled-task scan for the current height and advances
// to the next block.
func (r *Runtime) EndBlock(ctx context.Context) (payment.TickSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endBlock(ctx)
}

func (r *Runtime) endBlock(ctx context.Context) (payment.TickSummary, error) {
	height := r.height
	var summary payment.TickSummary
	res := r.apply(ctx, OpTick, func(e *payment.Engine) error {
		var err error
		summary, err = e.ProcessTasks(height)
		if err != nil {
			return err
		}
		return r.state.SetHeight(height + 1)
	})
	if res.Err != nil {
		// The block still advances so one broken entry cannot halt the chain.
		r.logger.Error("scheduled task scan failed", slog.Uint64("height", height), slog.Any("error", res.Err))
		if err := r.state.SetHeight(height + 1); err != nil {
			return summary, err
		}
		if err := r.state.Commit(); err != nil {
			r.state.Discard()
			return summary, err
		}
	}
	r.height = height + 1
	if res.Err != nil {
		return payment.TickSummary{Height: height}, res.Err
	}
	observability.Payments().RecordTick(height, summary.Cancelled, summary.Discarded, summary.Failed, summary.Pending)
	if summary.Cancelled > 0 || summary.Discarded > 0 || summary.Failed > 0 {
		r.logger.Info("scheduled tasks executed",
			slog.Uint64("height", height),
			slog.Int("cancelled", summary.Cancelled),
			slog.Int("discarded", summary.Discarded),
			slog.Int("failed", summary.Failed),
			slog.Int("pending", summary.Pending))
	}
	return summary, nil
}

// apply runs fn as one atomic unit. The caller holds r.mu.
func (r *Runtime) apply(ctx context.Context, operation string, fn func(*payment.Engine) error) *Result {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := r.tracer.Start(ctx, "payment."+operation, trace.WithAttributes(
		attribute.String("operation", operation),
		attribute.Int64("height", int64(r.height)),
	))
	defer span.End()

	start := time.Now()
	res := &Result{Operation: operation, Height: r.height}
	var err error
	if fn == nil {
		err = fmt.Errorf("runtime: empty call")
	} else {
		err = fn(r.engine)
	}
	if err == nil {
		if commitErr := r.state.Commit(); commitErr != nil {
			err = fmt.Errorf("runtime: %w", commitErr)
		}
	}
	if err != nil {
		r.state.Discard()
		r.buffer.Reset()
		res.Err = err
		kind := payment.Kind(err)
		observability.Payments().ObserveOperation(operation, string(kind), time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		level := slog.LevelWarn
		if kind == payment.KindInternal {
			level = slog.LevelError
		}
		r.logger.Log(ctx, level, "operation rejected",
			slog.String("operation", operation),
			slog.Uint64("height", r.height),
			slog.String("kind", string(kind)),
			slog.Any("error", err))
		return res
	}

	res.Events = events.ToWire(r.buffer.Drain())
	observability.Payments().ObserveOperation(operation, "", time.Since(start))
	for _, evt := range res.Events {
		observability.Payments().RecordEvent(evt.Type)
	}
	span.SetAttributes(attribute.Int("events", len(res.Events)))
	r.publish(ctx, res.Events)
	r.logger.Debug("operation applied",
		slog.String("operation", operation),
		slog.Uint64("height", r.height),
		slog.Int("events", len(res.Events)))
	return res
}

func (r *Runtime) publish(ctx context.Context, evts []types.Event) {
	if len(evts) == 0 {
		return
	}
	for _, sink := range r.sinks {
		if err := sink.Append(ctx, r.height, evts); err != nil {
			r.logger.Warn("event sink append failed",
				slog.Uint64("height", r.height),
				slog.Int("events", len(evts)),
				slog.Any("error", err))
		}
	}
}

// Genesis registers any assets not yet known on every start, and credits the
// initial balances only once.
func (r *Runtime) Genesis(ctx context.Context, assetList []state.AssetMetadata, balances []GenesisBalance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.apply(ctx, OpGenesis, func(*payment.Engine) error {
		for _, asset := range assetList {
			if r.state.AssetExists(asset.Symbol) {
				continue
			}
			if err := r.state.RegisterAsset(asset.Symbol, asset.Name, asset.Decimals); err != nil {
				return err
			}
		}
		applied, err := r.state.GenesisApplied()
		if err != nil || applied {
			return err
		}
		for _, bal := range balances {
			if err := r.ledger.Deposit(bal.Asset, bal.Account, bal.Amount); err != nil {
				return fmt.Errorf("genesis %s %s: %w", crypto.FormatAccount(bal.Account), bal.Asset, err)
			}
		}
		return r.state.MarkGenesisApplied()
	})
	return res.Err
}

// GenesisBalance is an initial allocation credited by Genesis.
type GenesisBalance struct {
	Account [20]byte
	Asset   string
	Amount  *big.Int
}

// Payment returns the live payment for the pair.
func (r *Runtime) Payment(payer, recipient [20]byte) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.Payment(payer, recipient)
}

// ScheduledTasks returns the registry in execution order.
func (r *Runtime) ScheduledTasks() ([]*payment.ScheduledTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.ScheduledTasks()
}

// Balance returns the holdings of asset for account.
func (r *Runtime) Balance(asset string, account [20]byte) (*types.Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Balance(asset, account)
}

// Assets lists registered asset symbols.
func (r *Runtime) Assets() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.AssetList()
}

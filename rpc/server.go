package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"escrowchain/core"
	"escrowchain/core/types"
	"escrowchain/native/payment"
	"escrowchain/observability"
	"escrowchain/storage/eventlog"
)

const (
	maxRequestBody  = 64 << 10
	requestIDHeader = "X-Request-ID"
)

// Backend is the escrow runtime seen by the HTTP surface.
type Backend interface {
	Submit(ctx context.Context, call core.Call) (*core.Result, error)
	Payment(payer, recipient [20]byte) (*payment.Payment, error)
	ScheduledTasks() ([]*payment.ScheduledTask, error)
	Balance(asset string, account [20]byte) (*types.Balance, error)
	Height() uint64
	Params() payment.Params
}

// Journal serves committed events.
type Journal interface {
	List(ctx context.Context, filter eventlog.Filter) ([]eventlog.Record, error)
}

type Config struct {
	Auth      AuthConfig
	RateLimit RateLimit
}

// Server exposes the escrow operations over JSON/HTTP.
type Server struct {
	backend Backend
	journal Journal
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
}

func NewServer(backend Backend, journal Journal, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		backend: backend,
		journal: journal,
		auth:    NewAuthenticator(cfg.Auth, logger),
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  logger,
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(pub chi.Router) {
			pub.Use(s.limiter.Middleware)
			pub.Get("/status", s.handleStatus)
			pub.Get("/payments/{payer}/{recipient}", s.handlePaymentGet)
			pub.Get("/tasks", s.handleTasks)
			pub.Get("/balances/{account}/{asset}", s.handleBalance)
			pub.Get("/events", s.handleEvents)
		})
		v1.Group(func(authed chi.Router) {
			authed.Use(s.auth.Middleware)
			authed.Use(s.limiter.Middleware)
			authed.Post("/payments", s.handlePay)
			authed.Post("/outgoing/{recipient}/release", s.handleRelease)
			authed.Post("/outgoing/{recipient}/refund", s.handleRequestRefund)
			authed.Post("/incoming/{payer}/cancel", s.handleCancel)
			authed.Post("/incoming/{payer}/dispute", s.handleDispute)
			authed.Post("/resolutions/{payer}/{recipient}", s.handleResolve)
			authed.Post("/requests", s.handleRequestPayment)
			authed.Post("/requests/{recipient}/accept", s.handleAccept)
			authed.Delete("/tasks/{payer}/{recipient}", s.handleRemoveTask)
		})
	})
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned to the request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = r.Method + " " + rctx.RoutePattern()
		}
		observability.HTTP().Observe(route, recorder.status, time.Since(start))
		s.logger.Debug("rpc request",
			slog.String("requestId", RequestID(r.Context())),
			slog.String("route", route),
			slog.Int("status", recorder.status),
			slog.Duration("duration", time.Since(start)))
	})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, call core.Call, status int) {
	res, err := s.backend.Submit(r.Context(), call)
	if err != nil {
		kind := payment.Kind(err)
		writeError(w, r, statusForKind(kind), string(kind), err)
		return
	}
	writeJSON(w, status, newOperationResponse(res))
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if !decode(w, r, &req) {
		return
	}
	recipient, amount, err := req.parse()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, string(payment.KindInvalidArgument), err)
		return
	}
	caller, _ := Caller(r.Context())
	s.submit(w, r, core.Pay(caller, recipient, req.Asset, amount, []byte(req.Remark)), http.StatusCreated)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	recipient, ok := accountParam(w, r, "recipient")
	if !ok {
		return
	}
	caller, _ := Caller(r.Context())
	s.submit(w, r, core.Release(caller, recipient), http.StatusOK)
}

func (s *Server) handleRequestRefund(w http.ResponseWriter, r *http.Request) {
	recipient, ok := accountParam(w, r, "recipient")
	if !ok {
		return
	}
	caller, _ := Caller(r.Context())
	s.submit(w, r, core.RequestRefund(caller, recipient), http.StatusOK)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	payer, ok := accountParam(w, r, "payer")
	if !ok {
		return
	}
	caller, _ := Caller(r.Context())
	s.submit(w, r, core.Cancel(caller, payer), http.StatusOK)
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	payer, ok := accountParam(w, r, "payer")
	if !ok {
		return
	}
	caller, _ := Caller(r.Context())
	s.submit(w, r, core.DisputeRefund(caller, payer), http.StatusOK)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	payer, ok := accountParam(w, r, "payer")
	if !ok {
		return
	}
	recipient, ok := accountParam(w, r, "recipient")
	if !ok {
		return
	}
	var req resolveRequest
	if !decode(w, r, &req) {
		return
	}
	share, err := payment.NewPercent(req.RecipientShare)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, string(payment.KindInvalidArgument), err)
		return
	}
	caller, _ := Caller(r.Context())
	s.submit(w, r, core.ResolvePayment(caller, payer, recipient, share), http.StatusOK)
}

func (s *Server) handleRequestPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequestRequest
	if !decode(w, r, &req) {
		return
	}
	payer, amount, err := req.parse()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, string(payment.KindInvalidArgument), err)
		return
	}
	caller, _ := Caller(r.Context())
	s.submit(w, r, core.RequestPayment(caller, payer, req.Asset, amount), http.StatusCreated)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	recipient, ok := accountParam(w, r, "recipient")
	if !ok {
		return
	}
	caller, _ := Caller(r.Context())
	s.submit(w, r, core.AcceptAndPay(caller, recipient), http.StatusOK)
}

func (s *Server) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	payer, ok := accountParam(w, r, "payer")
	if !ok {
		return
	}
	recipient, ok := accountParam(w, r, "recipient")
	if !ok {
		return
	}
	s.submit(w, r, core.RemoveTask(payer, recipient), http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStatusResponse(s.backend.Height(), s.backend.Params()))
}

func (s *Server) handlePaymentGet(w http.ResponseWriter, r *http.Request) {
	payer, ok := accountParam(w, r, "payer")
	if !ok {
		return
	}
	recipient, ok := accountParam(w, r, "recipient")
	if !ok {
		return
	}
	p, err := s.backend.Payment(payer, recipient)
	if err != nil {
		kind := payment.Kind(err)
		writeError(w, r, statusForKind(kind), string(kind), err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentView(p))
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.backend.ScheduledTasks()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, string(payment.KindInternal), err)
		return
	}
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, newTaskView(t))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": views})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r, "account")
	if !ok {
		return
	}
	asset := chi.URLParam(r, "asset")
	bal, err := s.backend.Balance(asset, account)
	if err != nil {
		kind := payment.Kind(err)
		writeError(w, r, statusForKind(kind), string(kind), err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView{Free: bal.Free.String(), Reserved: bal.Reserved.String()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, r, http.StatusNotFound, string(payment.KindNotFound), errors.New("event journal disabled"))
		return
	}
	filter, err := parseEventFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, string(payment.KindInvalidArgument), err)
		return
	}
	records, err := s.journal.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, string(payment.KindInternal), err)
		return
	}
	if records == nil {
		records = []eventlog.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": records})
}

func statusForKind(kind payment.ErrorKind) int {
	switch kind {
	case payment.KindNotFound:
		return http.StatusNotFound
	case payment.KindInvalidState:
		return http.StatusConflict
	case payment.KindUnauthorized:
		return http.StatusForbidden
	case payment.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case payment.KindCapacityExceeded, payment.KindPaused:
		return http.StatusServiceUnavailable
	case payment.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, r, http.StatusBadRequest, string(payment.KindInvalidArgument), fmt.Errorf("invalid JSON payload: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind string, err error) {
	writeJSON(w, status, map[string]errorBody{"error": {
		Kind:      kind,
		Message:   err.Error(),
		RequestID: RequestID(r.Context()),
	}})
}

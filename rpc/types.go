package rpc

import (
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"escrowchain/core"
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/payment"
	"escrowchain/storage/eventlog"
)

type payRequest struct {
	Recipient string `json:"recipient"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Remark    string `json:"remark,omitempty"`
}

func (p payRequest) parse() ([20]byte, *big.Int, error) {
	recipient, err := crypto.ParseAccount(p.Recipient)
	if err != nil {
		return [20]byte{}, nil, fmt.Errorf("recipient: %w", err)
	}
	amount, err := parseAmount(p.Amount)
	return recipient, amount, err
}

type paymentRequestRequest struct {
	Payer  string `json:"payer"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func (p paymentRequestRequest) parse() ([20]byte, *big.Int, error) {
	payer, err := crypto.ParseAccount(p.Payer)
	if err != nil {
		return [20]byte{}, nil, fmt.Errorf("payer: %w", err)
	}
	amount, err := parseAmount(p.Amount)
	return payer, amount, err
}

type resolveRequest struct {
	RecipientShare uint64 `json:"recipientShare"`
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("amount: %q is not a base-10 integer", raw)
	}
	return amount, nil
}

func accountParam(w http.ResponseWriter, r *http.Request, name string) ([20]byte, bool) {
	account, err := crypto.ParseAccount(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, string(payment.KindInvalidArgument), fmt.Errorf("%s: %w", name, err))
		return [20]byte{}, false
	}
	return account, true
}

func parseEventFilter(r *http.Request) (eventlog.Filter, error) {
	q := r.URL.Query()
	filter := eventlog.Filter{Type: q.Get("type")}
	if account := q.Get("account"); account != "" {
		if _, err := crypto.ParseAccount(account); err != nil {
			return filter, fmt.Errorf("account: %w", err)
		}
		filter.Account = account
	}
	if after := q.Get("after"); after != "" {
		v, err := strconv.ParseInt(after, 10, 64)
		if err != nil || v < 0 {
			return filter, fmt.Errorf("after: invalid sequence %q", after)
		}
		filter.After = v
	}
	if limit := q.Get("limit"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil || v <= 0 {
			return filter, fmt.Errorf("limit: invalid value %q", limit)
		}
		filter.Limit = v
	}
	return filter, nil
}

type operationResponse struct {
	Operation string        `json:"operation"`
	Height    uint64        `json:"height"`
	Events    []types.Event `json:"events"`
}

func newOperationResponse(res *core.Result) operationResponse {
	out := operationResponse{Events: []types.Event{}}
	if res == nil {
		return out
	}
	out.Operation = res.Operation
	out.Height = res.Height
	if res.Events != nil {
		out.Events = res.Events
	}
	return out
}

type paymentView struct {
	Payer     string `json:"payer"`
	Recipient string `json:"recipient"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	State     string `json:"state"`
	Resolver  string `json:"resolver"`
	Remark    string `json:"remark,omitempty"`
	CreatedAt uint64 `json:"createdAt"`
}

func newPaymentView(p *payment.Payment) paymentView {
	return paymentView{
		Payer:     crypto.FormatAccount(p.Payer),
		Recipient: crypto.FormatAccount(p.Recipient),
		Asset:     p.Asset,
		Amount:    p.Amount.String(),
		State:     p.State.String(),
		Resolver:  crypto.FormatAccount(p.Resolver),
		Remark:    string(p.Remark),
		CreatedAt: p.CreatedAt,
	}
}

type taskView struct {
	Payer     string `json:"payer"`
	Recipient string `json:"recipient"`
	Task      string `json:"task"`
	When      uint64 `json:"when"`
}

func newTaskView(t *payment.ScheduledTask) taskView {
	return taskView{
		Payer:     crypto.FormatAccount(t.Payer),
		Recipient: crypto.FormatAccount(t.Recipient),
		Task:      t.Task.String(),
		When:      t.When,
	}
}

type balanceView struct {
	Free     string `json:"free"`
	Reserved string `json:"reserved"`
}

type statusResponse struct {
	Height            uint64 `json:"height"`
	RefundWindow      uint64 `json:"refundWindow"`
	MaxRemarkLength   int    `json:"maxRemarkLength"`
	MaxScheduledTasks int    `json:"maxScheduledTasks"`
	Resolver          string `json:"resolver"`
}

func newStatusResponse(height uint64, params payment.Params) statusResponse {
	return statusResponse{
		Height:            height,
		RefundWindow:      params.RefundWindow,
		MaxRemarkLength:   params.MaxRemarkLength,
		MaxScheduledTasks: params.MaxScheduledTasks,
		Resolver:          crypto.FormatAccount(params.Resolver),
	}
}

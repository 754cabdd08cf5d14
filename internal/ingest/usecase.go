// Package ingest is the signal entry point: decode, validate, deduplicate,
// gate, route, commit. Exactly one broker submission can result from a
// request key no matter how many times the signal is delivered.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"

	"main/internal/audit"
	"main/internal/ledger"
	"main/internal/obs"
	"main/internal/risk"
	"main/internal/router"
	"main/internal/schema"
	"main/pkg/exception"
)

// Status classifies what ingestion did with a signal.
type Status string

const (
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"
	StatusDuplicate Status = "DUPLICATE"
	StatusInvalid   Status = "INVALID"
)

// Result is the ingestion outcome returned to the caller.
type Result struct {
	SignalKey string                `json:"signal_key"`
	Status    Status                `json:"status"`
	OrderID   string                `json:"order_id,omitempty"`
	SpreadID  string                `json:"spread_id,omitempty"`
	Reasons   []schema.RejectReason `json:"reasons,omitempty"`
}

// SubmissionRecorder counts accepted submissions against the rate throttle.
type SubmissionRecorder interface {
	RecordSubmission(ctx context.Context, strategyID string, at time.Time) error
}

// Usecase owns the ingestion pipeline.
type Usecase struct {
	gate     *risk.Gate
	router   *router.Router
	ledger   ledger.Ledger
	emitter  *audit.Emitter
	recorder SubmissionRecorder
}

// NewUsecase wires the pipeline stages together. recorder may be nil when
// no throttle accounting is wanted.
func NewUsecase(gate *risk.Gate, rt *router.Router, led ledger.Ledger, emitter *audit.Emitter, recorder SubmissionRecorder) *Usecase {
	return &Usecase{
		gate:     gate,
		router:   rt,
		ledger:   led,
		emitter:  emitter,
		recorder: recorder,
	}
}

// ProcessRaw decodes a JSON signal payload and processes it.
func (use *Usecase) ProcessRaw(ctx context.Context, payload []byte) (Result, error) {
	var sig schema.Signal
	if err := sonic.Unmarshal(payload, &sig); err != nil {
		return Result{Status: StatusInvalid}, exception.Wrap(exception.ErrSignalDecode, err.Error())
	}
	sig.Symbol = strings.ToUpper(sig.Symbol)
	return use.Process(ctx, sig)
}

// Process runs one signal through the pipeline. Duplicate deliveries return
// the first outcome without touching the gate or the broker.
func (use *Usecase) Process(ctx context.Context, sig schema.Signal) (Result, error) {
	if err := sig.Validate(); err != nil {
		obs.SignalsTotal.WithLabelValues(string(StatusInvalid)).Inc()
		return Result{Status: StatusInvalid}, err
	}

	key := sig.RequestKey(time.Now())

	claimed, err := use.ledger.Reserve(ctx, key)
	if err != nil {
		return Result{SignalKey: key, Status: StatusInvalid}, err
	}
	if !claimed {
		return use.replay(ctx, sig, key)
	}

	result, err := use.process(ctx, sig, key)
	if err != nil && (result.Status == StatusInvalid || exception.Is(err, exception.ErrTransport)) {
		// Nothing is confirmed at a venue; let a retry claim the key. The
		// resulting resubmission is idempotent on the client order ID.
		if relErr := use.ledger.Release(ctx, key); relErr != nil {
			logs.Errorf("release ledger key %s: %+v", key, relErr)
		}
		return result, err
	}

	if commitErr := use.ledger.Commit(ctx, key, ledger.Outcome{
		Decision: outcomeOf(result.Status),
		OrderID:  result.OrderID,
		SpreadID: result.SpreadID,
		Reasons:  result.Reasons,
	}); commitErr != nil {
		logs.Errorf("commit ledger key %s: %+v", key, commitErr)
	}

	obs.SignalsTotal.WithLabelValues(string(result.Status)).Inc()
	return result, err
}

func (use *Usecase) process(ctx context.Context, sig schema.Signal, key string) (Result, error) {
	decision, err := use.gate.Evaluate(ctx, sig, key)
	if err != nil {
		return Result{SignalKey: key, Status: StatusInvalid}, err
	}
	use.audit(use.emitter.RiskDecision(ctx, decision))

	if !decision.Accepted() {
		for _, reason := range decision.Reasons {
			obs.RiskRejectReasons.WithLabelValues(string(reason)).Inc()
		}
		return Result{SignalKey: key, Status: StatusRejected, Reasons: decision.Reasons}, nil
	}

	routed, err := use.router.Route(ctx, sig, decision)
	if err != nil {
		return Result{
			SignalKey: key,
			Status:    StatusRejected,
			OrderID:   routed.OrderID,
			SpreadID:  routed.SpreadID,
		}, err
	}

	if use.recorder != nil {
		if recErr := use.recorder.RecordSubmission(ctx, sig.StrategyID, time.Now()); recErr != nil {
			logs.Errorf("record submission for %s: %+v", sig.StrategyID, recErr)
		}
	}
	obs.OrdersTotal.WithLabelValues(string(routed.Status)).Inc()

	return Result{
		SignalKey: key,
		Status:    StatusAccepted,
		OrderID:   routed.OrderID,
		SpreadID:  routed.SpreadID,
	}, nil
}

// replay surfaces the committed outcome for a duplicate delivery. A
// duplicate is not an error: at-least-once transports redeliver.
func (use *Usecase) replay(ctx context.Context, sig schema.Signal, key string) (Result, error) {
	use.audit(use.emitter.DuplicateSignal(ctx, key, sig.StrategyID, sig.Symbol))
	obs.SignalsTotal.WithLabelValues(string(StatusDuplicate)).Inc()

	outcome, ok, err := use.ledger.Outcome(ctx, key)
	if err != nil {
		return Result{SignalKey: key, Status: StatusDuplicate}, err
	}
	if !ok {
		// Reserved but not yet committed: the first delivery is in flight.
		return Result{SignalKey: key, Status: StatusDuplicate}, nil
	}

	return Result{
		SignalKey: key,
		Status:    StatusDuplicate,
		OrderID:   outcome.OrderID,
		SpreadID:  outcome.SpreadID,
		Reasons:   outcome.Reasons,
	}, nil
}

func outcomeOf(status Status) schema.RiskOutcome {
	if status == StatusAccepted {
		return schema.RiskAccept
	}
	return schema.RiskReject
}

func (use *Usecase) audit(err error) {
	if err != nil {
		logs.Errorf("emit audit record: %+v", err)
	}
}

// Package dice turns numeric expressions into integers while publishing
// every die it rolls on the event bus.
package dice

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/suderio/baator/internal/bus"
	"github.com/suderio/baator/internal/expr"
	"github.com/suderio/baator/internal/rng"
)

// Event names published by the service.
const (
	EventRequested = "rng.requested"
	EventFulfilled = "rng.fulfilled"
	EventFailed    = "rng.failed"
	EventResolved  = "dice.resolved"
)

// ProvenanceKeys are the provenance fields flattened onto rng.* payloads.
var ProvenanceKeys = []string{"actor_id", "layer", "source", "requester"}

// Request asks for one expression to be resolved.
type Request struct {
	ID         string
	Expr       string
	Context    expr.Env
	Mode       expr.Mode
	Provenance bus.Provenance
}

// Resolution is the outcome of a Request.
type Resolution struct {
	RequestID string
	Value     any
	Rolls     []expr.RollDetail
}

// Int returns the value of a number-mode resolution.
func (r Resolution) Int() int {
	v, _ := r.Value.(int)
	return v
}

// Service resolves expressions against an RNG and reports rolls on a bus.
type Service struct {
	rng     rng.RNG
	bus     bus.Bus
	ev      *expr.Evaluator
	log     logrus.FieldLogger
	metrics *Metrics
	newID   func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// WithMetrics records resolutions in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithIDs replaces the uuid request id generator.
func WithIDs(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a Service rolling against r and publishing on b.
func NewService(r rng.RNG, b bus.Bus, opts ...Option) *Service {
	s := &Service{rng: r, bus: b, ev: expr.New(), newID: uuid.NewString}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = l
	}
	return s
}

// Evaluator exposes the compile cache shared by the service.
func (s *Service) Evaluator() *expr.Evaluator { return s.ev }

// ResolveNumber resolves src to an integer. An empty requestID gets a
// fresh uuid.
func (s *Service) ResolveNumber(requestID, src string, ctx expr.Env, prov bus.Provenance) (int, error) {
	res, err := s.Resolve(Request{ID: requestID, Expr: src, Context: ctx, Mode: expr.ModeNumber, Provenance: prov})
	if err != nil {
		return 0, err
	}
	return res.Int(), nil
}

// Resolve evaluates a request. A pure dice expression publishes one
// rng.requested/rng.fulfilled pair under the request id. In a mixed
// expression each dice term publishes its own pair under "<id>/<n>" with
// parent_request_id set, before the surrounding arithmetic is evaluated.
// A failed roll publishes rng.failed and returns the error.
func (s *Service) Resolve(req Request) (Resolution, error) {
	if req.ID == "" {
		req.ID = s.newID()
	}
	res := Resolution{RequestID: req.ID}

	e, err := s.ev.Compile(req.Expr)
	if err != nil {
		s.metrics.resolution("invalid")
		return res, err
	}

	pureExpr := ""
	if e.IsPureDice() {
		pureExpr = req.Expr
	}
	v, err := s.ev.EvaluateWith(e, req.Context, req.Mode, s.resolver(req.ID, pureExpr, req.Provenance, &res.Rolls))
	if err != nil {
		s.metrics.resolution("error")
		s.log.WithField("request_id", req.ID).WithField("expr", req.Expr).WithError(err).Debug("resolution failed")
		return res, err
	}
	s.metrics.resolution("ok")
	res.Value = v
	return res, nil
}

// resolver publishes a requested/fulfilled pair around every dice term it
// rolls. With pureExpr set the single term is reported under id with that
// expression text; otherwise each term gets "<id>/<n>" and parent_request_id.
func (s *Service) resolver(id, pureExpr string, prov bus.Provenance, rolls *[]expr.RollDetail) expr.DiceResolver {
	n := 0
	return func(d *expr.Dice, modifier int) (int, error) {
		payload := map[string]any{"kind": "expr", "expr": d.String(), "request_id": id}
		if pureExpr != "" {
			payload["expr"] = pureExpr
		} else {
			n++
			payload["request_id"] = fmt.Sprintf("%s/%d", id, n)
			payload["parent_request_id"] = id
		}

		s.emit(EventRequested, payload, prov)
		detail, err := d.Roll(s.rng, modifier)
		if err != nil {
			failed := copyPayload(payload)
			failed["reason"] = err.Error()
			s.emit(EventFailed, failed, prov)
			s.metrics.roll("failed")
			return 0, err
		}

		done := copyPayload(payload)
		done["result"] = detail.Result
		done["all_faces"] = detail.Faces
		done["kept_faces"] = detail.Kept
		done["modifier"] = detail.Modifier
		if len(detail.Rerolled) > 0 {
			done["rerolled"] = detail.Rerolled
		}
		s.emit(EventFulfilled, done, prov)
		s.metrics.roll("fulfilled")
		if rolls != nil {
			*rolls = append(*rolls, detail)
		}
		return detail.Result, nil
	}
}

// RunSteps executes rule steps against scope, rolling any dice through the
// service under "<requestID>/<n>".
func (s *Service) RunSteps(requestID string, steps []string, scope *expr.Scope, prov bus.Provenance) error {
	if requestID == "" {
		requestID = s.newID()
	}
	resolve := s.resolver(requestID, "", prov, nil)
	for _, src := range steps {
		step, err := expr.CompileStep(src)
		if err != nil {
			return err
		}
		if err := s.ev.ExecWith(step, scope, resolve); err != nil {
			return err
		}
	}
	return nil
}

// RollDetail resolves a pure dice expression and returns its detail.
func (s *Service) RollDetail(requestID, src string, ctx expr.Env, prov bus.Provenance) (expr.RollDetail, error) {
	e, err := s.ev.Compile(src)
	if err != nil {
		return expr.RollDetail{}, err
	}
	if !e.IsPureDice() {
		return expr.RollDetail{}, &expr.Error{Kind: expr.ErrTypeMismatch, Expr: src, Msg: "not a single dice term"}
	}
	res, err := s.Resolve(Request{ID: requestID, Expr: src, Context: ctx, Mode: expr.ModeNumber, Provenance: prov})
	if err != nil {
		return expr.RollDetail{}, err
	}
	return res.Rolls[0], nil
}

// Advantage rolls 2dNkh1 as one request.
func (s *Service) Advantage(sides int, prov bus.Provenance) (int, error) {
	return s.pair("adv", sides, prov)
}

// Disadvantage rolls 2dNkl1 as one request.
func (s *Service) Disadvantage(sides int, prov bus.Provenance) (int, error) {
	return s.pair("dis", sides, prov)
}

func (s *Service) pair(kind string, sides int, prov bus.Provenance) (int, error) {
	id := s.newID()
	payload := map[string]any{"kind": kind, "sides": sides, "request_id": id}
	s.emit(EventRequested, payload, prov)

	roll, picked := expr.Advantage, "max"
	if kind == "dis" {
		roll, picked = expr.Disadvantage, "min"
	}
	detail, err := roll(s.rng, sides)
	if err != nil {
		failed := copyPayload(payload)
		failed["reason"] = err.Error()
		s.emit(EventFailed, failed, prov)
		s.metrics.roll("failed")
		return 0, err
	}

	done := copyPayload(payload)
	done["result"] = detail.Result
	done["all_faces"] = detail.Faces
	done["picked"] = picked
	s.emit(EventFulfilled, done, prov)
	s.metrics.roll("fulfilled")
	return detail.Result, nil
}

func (s *Service) emit(name string, payload map[string]any, prov bus.Provenance) {
	ev := bus.NewEvent(name, prov.Pick(ProvenanceKeys...).Merge(payload))
	if err := s.bus.Publish(ev); err != nil {
		s.log.WithField("event", name).WithError(err).Warn("publish failed")
	}
}

func copyPayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p)+4)
	for k, v := range p {
		out[k] = v
	}
	return out
}

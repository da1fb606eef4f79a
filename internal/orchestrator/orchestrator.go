// Package orchestrator runs one query through guard, classifier, router, tools,
// gates and synthesizer as an explicit state machine.
package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/danielpatrickdp/agentic-rag/internal/errs"
	"github.com/danielpatrickdp/agentic-rag/internal/gate"
	"github.com/danielpatrickdp/agentic-rag/internal/guard"
	"github.com/danielpatrickdp/agentic-rag/internal/logger"
	"github.com/danielpatrickdp/agentic-rag/internal/logging"
)

// #endregion

// #region stage

// Stage is a state of the pipeline machine.
type Stage int

const (
	StageStart Stage = iota
	StageValidated
	StageClassified
	StageRouted
	StageToolExecuted
	StageRelevanceChecked
	StageSynthesized
	StageGroundChecked
	StageDone
	StageRejected
	StageFailed
)

var stageNames = [...]string{
	"start", "validated", "classified", "routed", "tool_executed",
	"relevance_checked", "synthesized", "ground_checked", "done", "rejected", "failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageRejected || s == StageFailed
}

// transitions lists the legal successors of every non-terminal stage.
// Edges back into StageRouted are the knowledge fallback.
var transitions = map[Stage][]Stage{
	StageStart:            {StageValidated, StageRejected, StageFailed},
	StageValidated:        {StageClassified, StageFailed},
	StageClassified:       {StageRouted, StageFailed},
	StageRouted:           {StageToolExecuted, StageRouted, StageFailed},
	StageToolExecuted:     {StageRelevanceChecked, StageSynthesized, StageRouted, StageFailed},
	StageRelevanceChecked: {StageSynthesized, StageRouted, StageFailed},
	StageSynthesized:      {StageGroundChecked, StageFailed},
	StageGroundChecked:    {StageDone, StageFailed},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Stage) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// #endregion

// #region errors

var (
	ErrStepBudget      = errors.New("step budget exhausted")
	ErrBadTransition   = errors.New("illegal stage transition")
	ErrToolUnavailable = errors.New("tool not configured")
)

// DefaultMaxSteps bounds transitions per request. The longest legal path,
// retrieval then synthesis failure then knowledge, takes eleven.
const DefaultMaxSteps = 16

// #endregion

// #region collaborators

// CorpusCounter reports the number of indexed passages.
type CorpusCounter interface {
	Count(ctx context.Context) (int, error)
}

// Observer receives per-stage and per-query measurements.
type Observer interface {
	StageDone(stage string, d time.Duration)
	QueryDone(rec logging.QueryRecord)
}

type nopObserver struct{}

func (nopObserver) StageDone(string, time.Duration) {}
func (nopObserver) QueryDone(logging.QueryRecord)   {}

// Deps are the orchestrator's collaborators. Guard, Classifier, Router,
// Gate, Synthesizer and Tools[ToolKnowledge] are required.
type Deps struct {
	Guard       *guard.Guard
	Classifier  *Classifier
	Router      *Router
	Gate        *gate.Gate
	Synthesizer *Synthesizer
	Tools       map[Tool]Executor
	Corpus      CorpusCounter
	Sink        logging.Sink
	Observer    Observer
	Log         *charmlog.Logger
	MaxSteps    int
}

// #endregion

// #region orchestrator-struct

// Orchestrator is safe for concurrent use; every Handle call owns its own state.
type Orchestrator struct {
	guard      *guard.Guard
	classifier *Classifier
	router     *Router
	gate       *gate.Gate
	synth      *Synthesizer
	tools      map[Tool]Executor
	corpus     CorpusCounter
	sink       logging.Sink
	observer   Observer
	log        *charmlog.Logger
	tracer     trace.Tracer
	maxSteps   int
}

// New wires an orchestrator from deps.
func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Guard == nil:
		return nil, errors.New("orchestrator: guard is required")
	case deps.Classifier == nil:
		return nil, errors.New("orchestrator: classifier is required")
	case deps.Router == nil:
		return nil, errors.New("orchestrator: router is required")
	case deps.Gate == nil:
		return nil, errors.New("orchestrator: gate is required")
	case deps.Synthesizer == nil:
		return nil, errors.New("orchestrator: synthesizer is required")
	case deps.Tools[ToolKnowledge] == nil:
		return nil, errors.New("orchestrator: knowledge tool is required")
	}

	o := &Orchestrator{
		guard:      deps.Guard,
		classifier: deps.Classifier,
		router:     deps.Router,
		gate:       deps.Gate,
		synth:      deps.Synthesizer,
		tools:      deps.Tools,
		corpus:     deps.Corpus,
		sink:       deps.Sink,
		observer:   deps.Observer,
		log:        logger.Component(deps.Log, "orch"),
		tracer:     otel.Tracer("github.com/danielpatrickdp/agentic-rag/internal/orchestrator"),
		maxSteps:   deps.MaxSteps,
	}
	if o.sink == nil {
		o.sink = logging.NopSink{}
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.maxSteps <= 0 {
		o.maxSteps = DefaultMaxSteps
	}
	return o, nil
}

// #endregion

// #region handle

// Handle runs query to a terminal state. It never panics and never returns a
// partially populated state: AnswerText, AnswerSource, Citations and Elapsed
// are always set. The record is written to the sink before returning.
func (o *Orchestrator) Handle(ctx context.Context, query string) (st *RequestState) {
	start := time.Now()
	st = &RequestState{
		RequestID:      uuid.NewString(),
		StartedAt:      start.UTC(),
		Query:          query,
		Intent:         IntentUnknown,
		AnswerSource:   SourceNone,
		AttemptedTools: []Tool{},
		Evidence:       []EvidenceItem{},
		Citations:      []Citation{},
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.handle",
		trace.WithAttributes(attribute.String("rag.request_id", st.RequestID)))
	r := &run{o: o, st: st}

	defer func() {
		if p := recover(); p != nil {
			o.log.Error("pipeline panic", "request_id", st.RequestID, "panic", p, "stack", string(debug.Stack()))
			r.pipelineFailure(errs.NewPipeline("handle", fmt.Errorf("panic: %v", p)))
		}
		st.Elapsed = time.Since(start)
		o.finish(ctx, span, r.stage, st)
		span.End()
	}()

	r.loop(ctx)
	return st
}

// #endregion

// #region run

// run is the per-request machine. query is the sanitised text sent downstream.
type run struct {
	o        *Orchestrator
	st       *RequestState
	query    string
	stage    Stage
	caveated bool
}

func (r *run) loop(ctx context.Context) {
	r.stage = StageStart
	for steps := 0; !r.stage.Terminal(); steps++ {
		if steps >= r.o.maxSteps {
			r.pipelineFailure(errs.NewPipeline("run", fmt.Errorf("%w after %d steps at %s", ErrStepBudget, steps, r.stage)))
			return
		}
		if err := ctx.Err(); err != nil {
			r.st.Error = err.Error()
			r.stage = StageFailed
			break
		}

		began := time.Now()
		sctx, span := r.o.tracer.Start(ctx, "stage."+r.stage.String())
		next := r.step(sctx, r.stage)
		span.SetAttributes(attribute.String("rag.next_stage", next.String()))
		span.End()
		r.o.observer.StageDone(r.stage.String(), time.Since(began))

		if !CanTransition(r.stage, next) {
			r.pipelineFailure(errs.NewPipeline("run", fmt.Errorf("%w: %s -> %s", ErrBadTransition, r.stage, next)))
			return
		}
		r.o.log.Debug("transition", "request_id", r.st.RequestID, "from", r.stage, "to", next)
		r.stage = next
	}

	if r.stage == StageFailed {
		r.noAnswer()
	}
}

func (r *run) step(ctx context.Context, s Stage) Stage {
	switch s {
	case StageStart:
		return r.validate()
	case StageValidated:
		return r.classify(ctx)
	case StageClassified:
		r.o.router.Apply(r.st)
		r.o.log.Info("routed", "request_id", r.st.RequestID, "intent", r.st.Intent,
			"confidence", r.st.IntentConfidence, "corpus", r.st.CorpusSize, "tool", r.st.SelectedTool)
		return StageRouted
	case StageRouted:
		return r.execute(ctx)
	case StageToolExecuted:
		return r.checkRelevance(ctx)
	case StageRelevanceChecked:
		return r.synthesize(ctx)
	case StageSynthesized:
		return r.checkGroundedness(ctx)
	case StageGroundChecked:
		return StageDone
	}
	panic(fmt.Sprintf("no handler for stage %s", s))
}

// #endregion

// #region stages

func (r *run) validate() Stage {
	res := r.o.guard.Validate(r.st.Query)
	if !res.Valid {
		r.st.Valid = false
		r.st.RejectionReason = res.Reason
		r.st.AnswerText = invalidQueryPrefix + res.Reason
		r.st.AnswerSource = SourceNone
		return StageRejected
	}
	r.st.Valid = true
	r.query = guard.Sanitize(r.st.Query)
	return StageValidated
}

func (r *run) classify(ctx context.Context) Stage {
	r.st.CorpusSize = r.o.corpusSize(ctx)
	c, err := r.o.classifier.Classify(ctx, r.query)
	if err != nil {
		r.o.log.Debug("classifier defaulted", "request_id", r.st.RequestID, "kind", errs.KindOf(err))
	}
	r.st.Intent = c.Intent
	r.st.IntentConfidence = c.Confidence
	return StageClassified
}

func (r *run) execute(ctx context.Context) Stage {
	tool := r.st.SelectedTool
	var res ToolResult
	if exec := r.o.tools[tool]; exec != nil {
		res = exec.Execute(ctx, r.query, r.st)
	} else {
		res = failed(tool, ErrToolUnavailable)
	}

	// an empty retrieval still reaches the relevance gate, which scores it 0
	emptyRetrieval := tool == ToolRetrieval && errors.Is(res.Err, ErrNoPassages)
	if !res.Success && !emptyRetrieval {
		r.recordError(res.Err)
		return r.fallback("tool failed")
	}
	if emptyRetrieval {
		r.recordError(res.Err)
	}

	r.st.Evidence = nonNil(res.Evidence)
	r.st.Citations = nonNil(res.Citations)
	if tool != ToolRetrieval {
		r.st.AnswerText = res.Answer
		r.st.AnswerSource = sourceFor(tool)
	}
	return StageToolExecuted
}

func (r *run) checkRelevance(ctx context.Context) Stage {
	if r.st.SelectedTool != ToolRetrieval {
		// knowledge and search produce their answer directly
		return StageSynthesized
	}

	texts := make([]string, len(r.st.Evidence))
	for i, e := range r.st.Evidence {
		texts[i] = e.Text
	}
	d := r.o.gate.Relevance(ctx, r.query, texts)
	score := d.Score
	r.st.RelevanceScore = &score
	r.st.IsRelevant = d.IsRelevant
	if !d.IsRelevant {
		return r.fallback("evidence not relevant")
	}
	return StageRelevanceChecked
}

func (r *run) synthesize(ctx context.Context) Stage {
	answer, source, err := r.o.synth.Synthesize(ctx, r.query, r.st.Evidence)
	if err != nil {
		r.recordError(err)
		return r.fallback("synthesis failed")
	}
	r.st.AnswerText = answer
	r.st.AnswerSource = source
	return StageSynthesized
}

func (r *run) checkGroundedness(ctx context.Context) Stage {
	evidence := ""
	if r.st.AnswerSource == SourceRetrieval {
		evidence = EvidenceText(r.st.Evidence)
	}
	d := r.o.gate.Groundedness(ctx, r.query, r.st.AnswerText, evidence, string(r.st.AnswerSource))
	conf := d.Confidence
	r.st.GroundednessConfidence = &conf
	r.st.IsGrounded = d.IsGrounded
	if !d.IsGrounded {
		r.applyCaveat()
	}
	return StageGroundChecked
}

// #endregion

// #region outcomes

func (r *run) fallback(reason string) Stage {
	from := r.st.SelectedTool
	if !applyFallback(r.st) {
		r.o.log.Warn("no fallback left", "request_id", r.st.RequestID, "tool", from, "reason", reason)
		return StageFailed
	}
	r.o.log.Info("fallback", "request_id", r.st.RequestID, "from", from, "to", r.st.SelectedTool, "reason", reason)
	return StageRouted
}

func (r *run) recordError(err error) {
	if err != nil {
		r.st.Error = err.Error()
	}
}

func (r *run) applyCaveat() {
	if r.caveated {
		return
	}
	r.st.AnswerText += UngroundedCaveat
	r.caveated = true
}

// noAnswer is the terminal state when every usable tool has failed.
func (r *run) noAnswer() {
	r.st.AnswerText = NoInformationAnswer
	r.st.AnswerSource = SourceNone
	r.st.Citations = []Citation{}
}

// pipelineFailure is the terminal state for faults inside the machine itself.
func (r *run) pipelineFailure(err error) {
	r.stage = StageFailed
	r.st.Error = err.Error()
	r.st.AnswerText = GenericErrorAnswer
	r.st.AnswerSource = SourceNone
	r.st.Citations = []Citation{}
	r.o.log.Error("pipeline failure", "request_id", r.st.RequestID, "err", err)
}

// #endregion

// #region helpers

func (o *Orchestrator) corpusSize(ctx context.Context) int {
	if o.corpus == nil {
		return 0
	}
	n, err := o.corpus.Count(ctx)
	if err != nil {
		o.log.Warn("corpus count failed, assuming empty", "err", err)
		return 0
	}
	return n
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, stage Stage, st *RequestState) {
	span.SetAttributes(
		attribute.String("rag.stage", stage.String()),
		attribute.String("rag.answer_source", string(st.AnswerSource)),
		attribute.String("rag.selected_tool", string(st.SelectedTool)),
		attribute.Bool("rag.needs_fallback", st.NeedsFallback),
	)
	if st.Error != "" {
		span.SetStatus(codes.Error, st.Error)
	}

	rec := st.Record()
	// the caller may have cancelled; the record is still written
	if err := o.sink.Write(context.WithoutCancel(ctx), rec); err != nil {
		o.log.Error("query log write failed", "request_id", st.RequestID, "err", err)
	}
	o.observer.QueryDone(rec)

	o.log.Info("query done",
		"request_id", st.RequestID,
		"stage", stage,
		"source", st.AnswerSource,
		"attempted", st.AttemptedTools,
		"grounded", st.IsGrounded,
		"elapsed", st.Elapsed.Round(time.Millisecond),
	)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// #endregion

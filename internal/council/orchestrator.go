// Package council implements the three-stage deliberation engine: parallel
// independent answers, anonymized peer ranking with aggregate scoring, and
// chairman synthesis.
package council

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conclave-ai/conclave/internal/events"
	"github.com/conclave-ai/conclave/internal/gateway"
	"github.com/conclave-ai/conclave/pkg/logger"
	"github.com/conclave-ai/conclave/pkg/metrics"
)

// Deliberation states recorded against a trace id.
const (
	StateStage1   = "stage1"
	StateStage2   = "stage2"
	StateStage3   = "stage3"
	StateComplete = "complete"
	StateError    = "error"
)

// DefaultTitle is used when title generation fails.
const DefaultTitle = "New Conversation"

// FallbackSynthesis is the Stage 3 response when the chairman model fails.
// Stage 1/2 results still carry real value at that point, so the failure
// stays soft instead of aborting the deliberation.
const FallbackSynthesis = "Error: the chairman model failed to produce a final synthesis. The individual council responses are still available."

// DefaultTitleModel answers title prompts. A small fast model keeps the
// side call cheap.
const DefaultTitleModel = "google/gemini-2.5-flash"

// maxTitleLength bounds generated titles; longer ones are truncated with
// an ellipsis.
const maxTitleLength = 50

// ErrNoResponses is the one hard mid-pipeline failure: every council model
// failed in Stage 1, leaving nothing to rank or synthesize.
var ErrNoResponses = errors.New("all council models failed to respond")

// StatusRecorder records deliberation state transitions keyed by trace id.
type StatusRecorder interface {
	Record(traceID, state string)
}

// Orchestrator sequences the three deliberation stages plus the optional
// title stage over a shared gateway client.
type Orchestrator struct {
	gw            *gateway.Client
	status        StatusRecorder
	log           logger.Logger
	councilModels []string
	chairmanModel string
	titleModel    string
	queryTimeout  time.Duration
	titleTimeout  time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStatusRecorder publishes state transitions to the given recorder.
func WithStatusRecorder(recorder StatusRecorder) Option {
	return func(o *Orchestrator) { o.status = recorder }
}

// WithQueryTimeout overrides the per-call timeout of the main stages.
func WithQueryTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.queryTimeout = d
		}
	}
}

// WithTitleTimeout overrides the per-call timeout of title generation.
func WithTitleTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.titleTimeout = d
		}
	}
}

// WithTitleModel overrides the model used for title generation.
func WithTitleModel(model string) Option {
	return func(o *Orchestrator) {
		if model != "" {
			o.titleModel = model
		}
	}
}

// New creates an Orchestrator with the given default council and chairman.
func New(gw *gateway.Client, councilModels []string, chairmanModel string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gw:            gw,
		log:           logger.Named("council"),
		councilModels: councilModels,
		chairmanModel: chairmanModel,
		titleModel:    DefaultTitleModel,
		queryTimeout:  120 * time.Second,
		titleTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes a full deliberation, emitting progress events to sink as
// each stage completes. The returned error is non-nil only for the hard
// failures: a missing credential, an oversized council, or a fully failed
// Stage 1. Each is emitted as an error event before the stream ends.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink events.Sink) (*Result, error) {
	if sink == nil {
		sink = events.Discard
	}

	gw := o.gw.WithCredential(req.Credential)
	if !gw.HasCredential() {
		return nil, o.fail(ctx, req.TraceID, sink, gateway.ErrMissingCredential)
	}

	models, chairman := o.resolve(req)
	if len(models) > MaxCouncilSize {
		return nil, o.fail(ctx, req.TraceID, sink, ErrCouncilTooLarge)
	}

	metrics.RecordDeliberationStarted()
	o.emit(ctx, sink, events.New(events.TypeStreamStart))

	// The title stage races Stage 1 instead of being sequenced after it.
	var titleCh chan string
	if req.GenerateTitle {
		titleCh = make(chan string, 1)
		go func() {
			titleCh <- o.generateTitle(ctx, gw, req.Content)
		}()
	}

	o.record(req.TraceID, StateStage1)
	o.emit(ctx, sink, events.New(events.TypeStage1Start))
	stage1Start := time.Now()
	stage1, err := o.stage1(ctx, gw, req.Content, models)
	if err != nil {
		return nil, o.fail(ctx, req.TraceID, sink, err)
	}
	if len(stage1) == 0 {
		return nil, o.fail(ctx, req.TraceID, sink, ErrNoResponses)
	}
	metrics.RecordStageLatency("stage1", time.Since(stage1Start).Seconds())
	o.emit(ctx, sink, events.NewData(events.TypeStage1Complete, stage1))

	o.record(req.TraceID, StateStage2)
	o.emit(ctx, sink, events.New(events.TypeStage2Start))
	stage2Start := time.Now()
	stage2, labelToModel, err := o.stage2(ctx, gw, req.Content, stage1, models)
	if err != nil {
		return nil, o.fail(ctx, req.TraceID, sink, err)
	}
	metadata := Metadata{
		LabelToModel:      labelToModel,
		AggregateRankings: Aggregate(stage2, labelToModel),
	}
	metrics.RecordStageLatency("stage2", time.Since(stage2Start).Seconds())
	stage2Event := events.NewData(events.TypeStage2Complete, stage2)
	stage2Event.Metadata = metadata
	o.emit(ctx, sink, stage2Event)

	o.record(req.TraceID, StateStage3)
	o.emit(ctx, sink, events.New(events.TypeStage3Start))
	stage3Start := time.Now()
	stage3 := o.stage3(ctx, gw, req.Content, stage1, stage2, chairman)
	metrics.RecordStageLatency("stage3", time.Since(stage3Start).Seconds())
	o.emit(ctx, sink, events.NewData(events.TypeStage3Complete, stage3))

	result := &Result{
		Stage1:   stage1,
		Stage2:   stage2,
		Stage3:   stage3,
		Metadata: metadata,
	}

	if titleCh != nil {
		result.Title = <-titleCh
		o.emit(ctx, sink, events.NewData(events.TypeTitleComplete, map[string]string{"title": result.Title}))
	}

	o.record(req.TraceID, StateComplete)
	o.emit(ctx, sink, events.New(events.TypeComplete))
	metrics.RecordDeliberationCompleted()
	return result, nil
}

// GenerateTitle produces a short title for content. It never fails;
// gateway errors fall back to DefaultTitle.
func (o *Orchestrator) GenerateTitle(ctx context.Context, content, credential string) string {
	return o.generateTitle(ctx, o.gw.WithCredential(credential), content)
}

// resolve applies per-request overrides over the configured defaults.
func (o *Orchestrator) resolve(req Request) ([]string, string) {
	models := req.CouncilModels
	if len(models) == 0 {
		models = o.councilModels
	}
	chairman := req.ChairmanModel
	if chairman == "" {
		chairman = o.chairmanModel
	}
	return models, chairman
}

// stage1 fans the query out to every council model and keeps the answers
// that came back, in request order so Stage 2 labeling is deterministic.
func (o *Orchestrator) stage1(ctx context.Context, gw *gateway.Client, query string, models []string) ([]Stage1Result, error) {
	messages := []gateway.Message{{Role: gateway.RoleUser, Content: query}}

	responses, err := gw.QueryParallel(ctx, models, messages, o.queryTimeout)
	if err != nil {
		return nil, fmt.Errorf("stage 1 query failed: %w", err)
	}

	results := make([]Stage1Result, 0, len(models))
	for _, model := range models {
		if response := responses[model]; response != nil {
			results = append(results, Stage1Result{Model: model, Response: response.Content})
		}
	}
	return results, nil
}

// stage2 anonymizes the Stage 1 answers and asks the full council to rank
// them. Models that fail the ranking call are skipped; unparseable ranking
// text yields an empty parsed sequence, not an error.
func (o *Orchestrator) stage2(ctx context.Context, gw *gateway.Client, query string, stage1 []Stage1Result, models []string) ([]Stage2Result, map[string]string, error) {
	labels, labelToModel, err := AssignLabels(stage1)
	if err != nil {
		return nil, nil, err
	}

	prompt := rankingPrompt(query, labeledResponsesBlock(stage1, labels))
	messages := []gateway.Message{{Role: gateway.RoleUser, Content: prompt}}

	responses, err := gw.QueryParallel(ctx, models, messages, o.queryTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("stage 2 query failed: %w", err)
	}

	results := make([]Stage2Result, 0, len(models))
	for _, model := range models {
		response := responses[model]
		if response == nil {
			continue
		}
		parsed := ParseRanking(response.Content)
		if len(parsed) == 0 {
			metrics.RecordRankingParseMiss()
		}
		results = append(results, Stage2Result{
			Model:         model,
			Ranking:       response.Content,
			ParsedRanking: parsed,
		})
	}
	return results, labelToModel, nil
}

// stage3 asks the chairman for the final synthesis. A failed chairman call
// degrades to FallbackSynthesis.
func (o *Orchestrator) stage3(ctx context.Context, gw *gateway.Client, query string, stage1 []Stage1Result, stage2 []Stage2Result, chairman string) Stage3Result {
	prompt := synthesisPrompt(query, stage1, stage2)
	messages := []gateway.Message{{Role: gateway.RoleUser, Content: prompt}}

	response, err := gw.Query(ctx, chairman, messages, o.queryTimeout)
	if err != nil {
		o.log.Warn(ctx, "chairman query failed",
			logger.String("model", chairman),
			logger.Error(err))
		return Stage3Result{Model: chairman, Response: FallbackSynthesis}
	}
	return Stage3Result{Model: chairman, Response: response.Content}
}

func (o *Orchestrator) generateTitle(ctx context.Context, gw *gateway.Client, content string) string {
	messages := []gateway.Message{{Role: gateway.RoleUser, Content: titlePrompt(content)}}

	response, err := gw.Query(ctx, o.titleModel, messages, o.titleTimeout)
	if err != nil {
		o.log.Warn(ctx, "title generation failed", logger.Error(err))
		metrics.RecordTitleFallback()
		return DefaultTitle
	}

	title := strings.TrimSpace(response.Content)
	title = strings.Trim(title, `"'`)
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength-3] + "..."
	}
	return title
}

func (o *Orchestrator) fail(ctx context.Context, traceID string, sink events.Sink, err error) error {
	metrics.RecordDeliberationFailed()
	o.record(traceID, StateError)
	o.log.Error(ctx, "deliberation failed", logger.Error(err))
	o.emit(ctx, sink, events.NewError(err.Error()))
	return err
}

func (o *Orchestrator) emit(ctx context.Context, sink events.Sink, event events.Event) {
	if err := sink.Send(event); err != nil {
		o.log.Debug(ctx, "event sink rejected event",
			logger.String("type", event.Type),
			logger.Error(err))
	}
}

func (o *Orchestrator) record(traceID, state string) {
	if traceID == "" || o.status == nil {
		return
	}
	o.status.Record(traceID, state)
}

package detect

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/h2smuggle/internal/model"
)

// Executor performs one request/response exchange.
// *session.Session implements it.
type Executor interface {
	Execute(ctx context.Context, target model.Target, spec model.RequestSpec) model.ResponseOutcome
}

// Step is one request of a probe.
type Step struct {
	// Name describes the request in reports.
	Name string

	// Build crafts the request for a target. It is called once per run.
	Build func(model.Target) model.RequestSpec
}

// Probe is a declarative smuggling test.
//
// Exactly one of Verdict and StepVerdict is set. With Verdict every step is
// sent and the first step is the control baseline: if it times out the probe
// is not vulnerable, whatever Verdict says. With StepVerdict the probe fires
// on the first step whose outcome satisfies it and skips the rest.
type Probe struct {
	ID    model.ProbeID
	Label string
	Steps []Step

	Verdict     func([]model.ResponseOutcome) bool
	StepVerdict func(model.ResponseOutcome) bool
}

// Progress observes probe execution. Calls happen on the goroutine running
// the probe.
type Progress interface {
	ProbeStarted(target model.Target, probe Probe)
	ProbeFinished(target model.Target, result model.DetectionResult)
}

// CheckObserver is implemented by Progress values that also follow the
// sanity check.
type CheckObserver interface {
	CheckStarted(target model.Target)
	CheckFinished(target model.Target, result model.CheckResult)
}

// Engine runs probes against targets.
type Engine struct {
	exec     Executor
	logger   *slog.Logger
	progress Progress
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProgress sets the progress observer.
func WithProgress(p Progress) Option {
	return func(e *Engine) {
		e.progress = p
	}
}

// NewEngine creates an Engine that sends requests through exec.
func NewEngine(exec Executor, opts ...Option) *Engine {
	e := &Engine{
		exec:   exec,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check sends the plain GET sanity check.
func (e *Engine) Check(ctx context.Context, target model.Target) model.CheckResult {
	observer, _ := e.progress.(CheckObserver)
	if observer != nil {
		observer.CheckStarted(target)
	}
	outcome := e.exec.Execute(ctx, target, CheckRequest(target))
	e.logger.Debug("sanity check",
		slog.String("target", target.Addr()),
		slog.Bool("responded", outcome.Responded()),
		slog.String("status", outcome.Status()),
		slog.String("error", outcome.Error.String()),
		slog.Bool("timed_out", outcome.TimedOut),
	)
	res := model.NewCheckResult(outcome)
	if observer != nil {
		observer.CheckFinished(target, res)
	}
	return res
}

// Run evaluates one probe. Steps are sent strictly in order.
// The error is non-nil when ctx ends before the last step completed; the
// result is then not vulnerable.
func (e *Engine) Run(ctx context.Context, target model.Target, probe Probe) (model.DetectionResult, error) {
	if e.progress != nil {
		e.progress.ProbeStarted(target, probe)
	}
	start := time.Now()
	result := model.DetectionResult{
		Probe: probe.ID,
		Label: probe.Label,
		Steps: make([]model.StepOutcome, 0, len(probe.Steps)),
	}

	outcomes := make([]model.ResponseOutcome, 0, len(probe.Steps))
	var runErr error
	for _, step := range probe.Steps {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		spec := step.Build(target)
		outcome := e.exec.Execute(ctx, target, spec)
		outcomes = append(outcomes, outcome)
		result.Steps = append(result.Steps, model.StepOutcome{
			Step:        step.Name,
			Fingerprint: spec.Fingerprint(),
			Outcome:     outcome.Summary(),
		})
		e.logger.Debug("probe step",
			slog.String("probe", string(probe.ID)),
			slog.String("step", step.Name),
			slog.String("outcome", outcome.Summary().Describe()),
		)

		if probe.StepVerdict != nil && probe.StepVerdict(outcome) {
			result.Vulnerable = true
			break
		}
	}

	// A step cut short by cancellation is not an observation.
	if runErr == nil {
		runErr = ctx.Err()
	}
	switch {
	case runErr != nil:
		result.Vulnerable = false
	case probe.StepVerdict == nil:
		result.Vulnerable = classify(probe, outcomes)
	}
	result.Elapsed = time.Since(start)

	e.logger.Info("probe finished",
		slog.String("target", target.Addr()),
		slog.String("probe", string(probe.ID)),
		slog.Bool("vulnerable", result.Vulnerable),
	)
	if e.progress != nil {
		e.progress.ProbeFinished(target, result)
	}
	return result, runErr
}

// classify applies the control baseline guard before the probe's verdict.
func classify(probe Probe, outcomes []model.ResponseOutcome) bool {
	if len(outcomes) != len(probe.Steps) || len(outcomes) == 0 {
		return false
	}
	if outcomes[0].TimedOut {
		return false
	}
	return probe.Verdict(outcomes)
}

// RunAll evaluates probes one after the other and stops early when ctx ends.
func (e *Engine) RunAll(ctx context.Context, target model.Target, probes []Probe) ([]model.DetectionResult, error) {
	results := make([]model.DetectionResult, 0, len(probes))
	for _, p := range probes {
		res, err := e.Run(ctx, target, p)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

package pipeline

import (
	"context"
	"fmt"

	"github.com/nao1215/h2smuggle/internal/detect"
	"github.com/nao1215/h2smuggle/internal/model"
)

// CheckStep sends the plain GET sanity check. A target that does not answer
// it is not probed.
type CheckStep struct {
	engine *detect.Engine
}

// NewCheckStep creates a sanity check step.
func NewCheckStep(engine *detect.Engine) *CheckStep {
	return &CheckStep{engine: engine}
}

// Name returns the step name.
func (s *CheckStep) Name() string {
	return "check"
}

// Do runs the check and fails with detect.ErrNoResponse when no response
// headers arrived.
func (s *CheckStep) Do(ctx context.Context, report *model.ScanReport) error {
	res := s.engine.Check(ctx, report.Target)
	report.Check = &res
	if !res.Responded {
		return fmt.Errorf("%w from %s: %s", detect.ErrNoResponse, report.Target, res.Outcome.Describe())
	}
	return nil
}

// ProbeStep runs a single probe.
type ProbeStep struct {
	engine *detect.Engine
	probe  detect.Probe
}

// NewProbeStep creates a step running probe.
func NewProbeStep(engine *detect.Engine, probe detect.Probe) *ProbeStep {
	return &ProbeStep{engine: engine, probe: probe}
}

// Name returns the probe id.
func (s *ProbeStep) Name() string {
	return string(s.probe.ID)
}

// Do runs the probe and appends its result. An interrupted probe leaves no
// result behind.
func (s *ProbeStep) Do(ctx context.Context, report *model.ScanReport) error {
	res, err := s.engine.Run(ctx, report.Target, s.probe)
	if err != nil {
		return fmt.Errorf("probe %s: %w", s.probe.ID, err)
	}
	report.AddResult(res)
	return nil
}

// NewScanPipeline builds the pipeline of one target: the sanity check and
// then every probe in order.
func NewScanPipeline(engine *detect.Engine, probes []detect.Probe, opts ...Option) *Pipeline {
	p := New(opts...)
	p.AddStep(NewCheckStep(engine))
	for _, probe := range probes {
		p.AddStep(NewProbeStep(engine, probe))
	}
	return p
}

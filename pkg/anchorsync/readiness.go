package anchorsync

import (
	"context"
	"iter"
	"time"
)

// ReadinessSource is the part of the remote service the gate polls.
type ReadinessSource interface {
	IsReadyForCreate() bool
	RecommendedProgress() float64
}

// ReadinessGate holds a save back until enough of the environment is captured.
type ReadinessGate struct {
	source ReadinessSource
	log    Logger
}

func NewReadinessGate(source ReadinessSource, log Logger) *ReadinessGate {
	return &ReadinessGate{source: source, log: log}
}

// AwaitReady yields a progress sample after every poll. The sequence ends after
// the sample on which the service reports ready, or with a
// *ReadinessTimeoutError once maxWait has elapsed, or with ctx's error.
func (g *ReadinessGate) AwaitReady(ctx context.Context, poll, maxWait time.Duration) iter.Seq2[float64, error] {
	return func(yield func(float64, error) bool) {
		if poll <= 0 {
			poll = DefaultPollInterval
		}
		start := time.Now()
		ready, last := g.sample()
		if !yield(last, nil) || ready {
			return
		}

		timer := time.NewTimer(poll)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				yield(last, ctx.Err())
				return
			case <-timer.C:
			}

			ready, last = g.sample()
			if ready {
				yield(last, nil)
				return
			}
			if maxWait > 0 && time.Since(start) >= maxWait {
				g.log.Warnf("readiness not reached after %s (progress %.0f%%)", maxWait, last*100)
				yield(last, &ReadinessTimeoutError{LastFraction: last})
				return
			}
			if !yield(last, nil) {
				return
			}
			timer.Reset(poll)
		}
	}
}

// sample polls the ready predicate, then reads the progress it produced.
func (g *ReadinessGate) sample() (bool, float64) {
	ready := g.source.IsReadyForCreate()
	return ready, clampFraction(g.source.RecommendedProgress())
}

// Wait drains AwaitReady, handing each sample to onSample.
func (g *ReadinessGate) Wait(ctx context.Context, poll, maxWait time.Duration, onSample func(float64)) error {
	for fraction, err := range g.AwaitReady(ctx, poll, maxWait) {
		if onSample != nil {
			onSample(fraction)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func clampFraction(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

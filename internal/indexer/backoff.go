package indexer

import "time"

const (
	DefaultInitialStep uint64 = 100_000
	DefaultMinStep     uint64 = 1_000
	DefaultBaseDelay          = 250 * time.Millisecond
	DefaultMaxDelay           = 10 * time.Second
)

// StepPolicy decides window sizes and inter-window sleeps for a sync run.
type StepPolicy struct {
	InitialStep uint64
	MinStep     uint64
	// BaseDelay is the sleep between windows before any failure.
	BaseDelay time.Duration
	// MaxDelay caps the sleep regardless of how many halvings happened.
	MaxDelay time.Duration
}

// DefaultStepPolicy returns the production policy.
func DefaultStepPolicy() StepPolicy {
	return StepPolicy{
		InitialStep: DefaultInitialStep,
		MinStep:     DefaultMinStep,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

func (p StepPolicy) withDefaults() StepPolicy {
	if p.InitialStep == 0 {
		p.InitialStep = DefaultInitialStep
	}
	if p.MinStep == 0 {
		p.MinStep = DefaultMinStep
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Next returns the step to retry with after the failures-th transient error.
// ok is false when the halved step drops below MinStep and the run must abort.
func (p StepPolicy) Next(step uint64, failures int) (next uint64, ok bool) {
	p = p.withDefaults()
	if failures <= 0 {
		return step, step >= p.MinStep
	}
	next = step / 2
	if next < p.MinStep {
		return 0, false
	}
	return next, true
}

// Retries is how many times the initial step can halve before the run
// aborts. Reads without a window, such as the chain head, get the same budget.
func (p StepPolicy) Retries() int {
	p = p.withDefaults()
	n := 0
	for step := p.InitialStep; ; n++ {
		next, ok := p.Next(step, 1)
		if !ok {
			return n
		}
		step = next
	}
}

// Delay returns the sleep between windows after failures halvings:
// BaseDelay doubled per halving, capped at MaxDelay.
func (p StepPolicy) Delay(failures int) time.Duration {
	p = p.withDefaults()
	delay := p.BaseDelay
	for i := 0; i < failures; i++ {
		if delay >= p.MaxDelay {
			break
		}
		if delay == 0 {
			delay = time.Millisecond
		}
		delay *= 2
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

package vending

import (
	"math/rand"
	"sync"
)

// FaultFlag names one simulated hardware or network fault.
type FaultFlag string

// Fault flags.
const (
	FaultCardReader        FaultFlag = "card_reader"
	FaultCardPaymentReject FaultFlag = "card_payment_reject"
	FaultDispense          FaultFlag = "dispense"
)

// FaultState is the operator-set condition of one flag. Active forces the
// fault deterministically. Rate, when in (0,1], additionally triggers the
// fault at random with that probability; zero disables the random mode.
type FaultState struct {
	Active bool    `json:"active"`
	Rate   float64 `json:"rate,omitempty"`
}

// FaultModel holds the operator-controlled fault toggles. The orchestrator
// only reads it; mutation happens at the administrative boundary.
type FaultModel struct {
	mu    sync.RWMutex
	flags map[FaultFlag]FaultState
	rng   func() float64
}

// NewFaultModel returns a model with all flags clear.
func NewFaultModel() *FaultModel {
	return &FaultModel{
		flags: map[FaultFlag]FaultState{
			FaultCardReader:        {},
			FaultCardPaymentReject: {},
			FaultDispense:          {},
		},
		rng: rand.Float64,
	}
}

// SetRandSource replaces the probability source. Tests inject a fixed one.
func (f *FaultModel) SetRandSource(rng func() float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rng = rng
}

// Set updates one flag.
func (f *FaultModel) Set(flag FaultFlag, state FaultState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.flags[flag]; !ok {
		return newError(CodeUnknownFaultFlag, KindValidation, "unknown fault flag %q", flag)
	}
	if state.Rate < 0 {
		state.Rate = 0
	}
	if state.Rate > 1 {
		state.Rate = 1
	}
	f.flags[flag] = state
	return nil
}

// Triggered reports whether the flag fires right now. A set flag always
// fires; a trigger rate fires with its probability.
func (f *FaultModel) Triggered(flag FaultFlag) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	state := f.flags[flag]
	if state.Active {
		return true
	}
	if state.Rate > 0 {
		return f.rng() < state.Rate
	}
	return false
}

// Snapshot returns a copy of all flag states.
func (f *FaultModel) Snapshot() map[FaultFlag]FaultState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[FaultFlag]FaultState, len(f.flags))
	for flag, state := range f.flags {
		out[flag] = state
	}
	return out
}

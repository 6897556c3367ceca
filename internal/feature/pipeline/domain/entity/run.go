// Package entity defines the domain models for the quote pipeline.
package entity

import "time"

// State is a pipeline run's position in the stage chain.
type State string

const (
	StatePending    State = "PENDING"
	StateSensing    State = "SENSING"
	StateFetching   State = "FETCHING"
	StateStoring    State = "STORING"
	StateFormatting State = "FORMATTING"
	StateLocating   State = "LOCATING"
	StateLoading    State = "LOADING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
)

// stateOrder is the only legal forward path; FAILED is reachable from any non-terminal state.
var stateOrder = []State{
	StatePending,
	StateSensing,
	StateFetching,
	StateStoring,
	StateFormatting,
	StateLocating,
	StateLoading,
	StateSucceeded,
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	for i, st := range stateOrder[:len(stateOrder)-1] {
		if st == s {
			return stateOrder[i+1] == next
		}
	}
	return false
}

// StageName identifies a unit of work in the chain. It doubles as the key of
// the value a stage publishes to the handoff channel.
type StageName string

const (
	StageSensor StageName = "is_api_available"
	StageFetch  StageName = "get_stock_prices"
	StageStore  StageName = "store_prices"
	StageFormat StageName = "format_prices"
	StageLocate StageName = "get_formatted_csv"
	StageLoad   StageName = "load_to_dw"
)

// Stages lists every stage in execution order.
var Stages = []StageName{StageSensor, StageFetch, StageStore, StageFormat, StageLocate, StageLoad}

// State returns the run state while the stage executes.
func (s StageName) State() State {
	switch s {
	case StageSensor:
		return StateSensing
	case StageFetch:
		return StateFetching
	case StageStore:
		return StateStoring
	case StageFormat:
		return StateFormatting
	case StageLocate:
		return StateLocating
	case StageLoad:
		return StateLoading
	default:
		return StatePending
	}
}

// Run is one execution of the chain for one symbol on one logical date.
type Run struct {
	ID          string
	Symbol      string    // Uppercase ticker (e.g., "NVDA")
	RunDate     time.Time // Logical run date, truncated to the day in UTC
	State       State
	FailedStage StageName // Set only when State is FAILED
	ErrorKind   string    // domain.ErrorKind of the failure
	Error       string
	RowsLoaded  int64
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Notification is the single terminal message sent for a run.
type Notification struct {
	RunID     string
	Symbol    string
	RunDate   time.Time
	Succeeded bool
	Stage     StageName // Failing stage; empty on success
	Kind      string    // Error kind; empty on success
	Message   string
}

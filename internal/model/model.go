package model

import "time"

// Node identifies one remote eno unit: a control server paired with a SIM.
// Nodes come from inventory and are never mutated during a run.
type Node struct {
	Name        string
	Address     string
	SIM         string
	PhoneNumber string // empty until the SIM is provisioned
}

// WaitOutcome is one journal row describing how a wait ended.
type WaitOutcome struct {
	Timestamp   time.Time
	Node        string
	Kind        string
	Predicate   string
	Matched     bool
	Polls       int
	FetchErrors int
	ElapsedMs   float64
	Error       string
}

package core

// These errors are user errors, not internal errors.

import (
	"errors"
)

// NoDocument occurs when an Engine is asked to initialize without a
// document.
var NoDocument = errors.New("engine has no document")

// NoStates occurs when an index build finds no states at all, which
// can't happen with a well-formed document (the root itself is a
// state).
var NoStates = errors.New("no states in document")

// UnknownTransitionTarget occurs when a transition names a target id
// that doesn't resolve to any state.
type UnknownTransitionTarget struct {
	Transition *Transition
	TargetID   string
}

func (e *UnknownTransitionTarget) Error() string {
	return `transition target "` + e.TargetID + `" not found`
}

// IllegalConfiguration occurs when LegalConfiguration finds the
// active configuration in violation of the SCXML well-formedness
// rules.  Only tests are expected to check this.
type IllegalConfiguration struct {
	Reason string
}

func (e *IllegalConfiguration) Error() string {
	return "illegal configuration: " + e.Reason
}

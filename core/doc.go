// Package core implements the SCXML micro-step engine.
//
// An Index is built once from a chart.Document: states and
// transitions become dense arrays in document order with all
// structural relations (ancestors, descendants, completions, exit
// sets, conflicts) precomputed as bit-sets.  An Engine then advances
// the chart one micro-step per Step call, pulling events and pushing
// side-effects through a narrow Callbacks contract.
//
// The engine is deliberately ignorant of expressions and executable
// content; those arrive as opaque elements and leave through
// Callbacks.  See package datamodel for implementations.
//
// An Engine is not safe for concurrent use.  One goroutine drives
// Step; events from elsewhere must arrive through the external queue
// behind Callbacks.DequeueExternal.
package core

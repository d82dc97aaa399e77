// Package scxml provides an SCXML (State Chart XML) interpreter core.
//
// The micro-step engine is in package 'core', the document model is in
// 'chart', event-descriptor matching is in 'match', and datamodels live
// under 'datamodel'.  Package 'sio' couples engines to the outside
// world, and some command-line tools are in 'cmd'.
package scxml

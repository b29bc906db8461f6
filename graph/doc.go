// Package graph provides a small state machine runner: nodes transform a
// typed state, edges (static or conditional) pick the next node, and a
// compiled graph runs the nodes sequentially until END, optionally saving
// a checkpoint after every step so an interrupted run can be resumed.
package graph

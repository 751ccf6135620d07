// Package exec executes swap requests. A request runs on a worker
// through Execute, which drives the encoder and the store, then rejoins
// the pipeline thread through the notify callback; Finish commits the
// in-memory side there. Errors short-circuit to notification and make
// Finish a no-op.
package exec

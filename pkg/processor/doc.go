/*
Package processor turns raw gamepad samples into processed controller
events.

The Processor drains the raw queue on a fixed cadence (130ms by default)
and handles each sample in arrival order: values are validated (unknown
controls and out-of-range values are counted and discarded), stick and
trigger values pass through a rescaling deadzone, sub-epsilon axis moves
are suppressed as jitter, and button samples are reduced to press/release
edges. Every emitted ControllerOutput carries a snapshot of the whole
controller as of that event, so downstream mapping engines never need to
reconstruct state.

The processor terminates when the raw queue closes and closes its own
output queue on the way out; it carries no separate stop signal.
*/
package processor

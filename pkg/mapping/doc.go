/*
Package mapping converts processed controller events into protocol
outputs.

An Engine is a lifecycle state machine around a Strategy:

	Initializing → Configured → Active → Deactivating → Terminated

Configure is legal from Initializing, Configured, and Active (live
rebind); Activate only from Configured; Deactivate only from Active. Every
other pairing fails with ErrInvalidTransition and leaves the state
untouched. Deactivate is synchronous: it stops intake, drains the
engine's queue, emits the strategy's failsafe output, and lands in
Terminated. Terminated engines are never revived, only replaced.

Two strategies exist. The keyboard strategy maps button edges to key
press/release pairs and stick positions to held compass-section keys, with
a hysteresis band so jitter at a section boundary cannot toggle keys. The
radio strategy maps sticks, triggers, and buttons onto RC channels and
emits the complete current frame on every change; DefaultRadioTable gives
the Mode-2 layout.

The Manager owns the registry and fan-out: each processed event is offered
to every active engine in registration order, each engine buffering in its
own bounded queue with drop-oldest overflow so one backlogged engine never
stalls the rest. Engines also skip events whose stick travel since the
last mapped event is below the significance threshold with an unchanged
button set. Mapped outputs funnel into one sink queue per protocol.
*/
package mapping

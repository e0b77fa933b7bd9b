/*
Package app is the supervisor. It owns every long-lived task in the
pipeline

	device → collector → processor → mapping engines → protocol handlers

plus the output sinks and the persistence manager, and it encodes the
teardown order: control plane first, then protocol handlers, then engine
deactivation (which flushes failsafe outputs through the still-open
sinks), then input, and finally one synchronous save of the live session.

Control operations that rebuild shared wiring, such as switching broker
profiles, changing the engine registry, or loading a session, are
serialized through an intent queue on a single goroutine. Data-plane flow
never passes through that queue.
*/
package app

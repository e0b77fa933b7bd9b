/*
Package input reads gamepads and feeds the raw event queue.

The Device interface abstracts the hardware; the SDL driver implements it
by polled snapshot diffing over the game controller API, normalizing stick
axes to [-1, 1], triggers to [0, 1], and buttons to 0 or 1.

The Collector is the long-lived task that owns a Device. It samples on a
fixed interval and pushes every changed control into a bounded drop-oldest
queue consumed by the event processor. The queue closing is the only
termination signal downstream: both a clean Stop and a device disconnect
end with the queue closed, and Err distinguishes the two afterwards.

A device disconnect is terminal. The collector does not reopen devices;
supervision above it decides whether to exit or wait for a new device.
*/
package input

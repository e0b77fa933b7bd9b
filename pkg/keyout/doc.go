/*
Package keyout replays keyboard mapping outputs on a Linux virtual
keyboard created through uinput.

The Sink consumes the keyboard protocol sink queue and issues KeyDown and
KeyUp calls in order. It tracks which keys are currently down and releases
all of them when its input closes, so a shutdown mid-hold never leaves a
key stuck on the system.
*/
package keyout

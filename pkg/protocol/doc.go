/*
Package protocol connects mapped outputs to the outside world.

Handler is a generic connection state machine:

	Disconnected → Connecting → Connected → Reconnecting → …

with Closing terminal from any state. All connection state is owned by the
handler's run loop; callers issue Connect/Disconnect/Close commands, push
payloads through Send, and observe progress on a latest-value Status
broadcast. Send fails immediately with ErrNotConnected unless the handler
is Connected — nothing is queued for later. Reconnection backs off
exponentially (500ms doubling to a 30s cap by default); after the retry
ceiling the status reports a persistent failure but retries continue until
a disconnect or close.

Two transports specialize the handler. The broker transport speaks MQTT:
it dials with auto-reconnect disabled so the handler remains the single
driver of connection state, subscribes the configured topics on every
(re)connect, and surfaces inbound publishes as Messages. The radio
transport frames channel data over a byte Link (normally a raw 8N1 serial
port): outbound frames are CRSF RC-channels packets with CRC-8/DVB-S2, and
inbound bytes are resynchronized into telemetry frames such as link
statistics.
*/
package protocol

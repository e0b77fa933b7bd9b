/*
Package flow provides the three channel primitives used between padbridge
tasks.

Queue is a bounded FIFO with drop-oldest overflow: producers never block,
and when a slow consumer lets the queue fill, the stalest item is evicted
in favor of the newest. Used for raw input events, per-engine dispatch
queues, and the persistence request queue.

Value is a latest-value broadcast cell: watchers always observe the most
recent value and may skip intermediate ones. Used for connection status
and engine state broadcasts where only the current state matters.

Reply is a single-use response slot carried inside a request so the
requester can block for the outcome of an operation executed by another
task. Used by the persistence manager's serialized save/load requests.

Closing a Queue or Value is the shutdown signal for its consumers; there
is no separate cancellation token between tasks.
*/
package flow

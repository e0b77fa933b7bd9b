/*
Package session owns the persisted session document: broker profiles,
radio link parameters, engine mapping tables, UI preferences, and the
broker message history.

Store is the bbolt layer, keeping each session as a JSON blob keyed by
name plus a meta bucket tracking the last used session. Documents carry a
schema version; loading a document with an unknown version fails with
ErrSchemaVersion and leaves both the document and the live session
untouched.

Live is the in-memory configuration shared across tasks behind an
RWMutex. Disk I/O always operates on deep copies taken under the lock,
never on the live value itself.

Manager serializes every save, load, delete, and list through a single
worker goroutine, so concurrent triggers (manual save, autosave, load)
cannot interleave on the store. Autosave ticks arriving while a save is
already queued are dropped and counted.
*/
package session

/*
Package types defines the shared data model for padbridge: controller
events and state, mapping tables, radio channel frames, lifecycle and
connection states, the persisted session document, and the sentinel
errors every layer reports against.

# Core Types

Controller events:
  - RawInputEvent: one normalized sample from the device
  - ControllerOutput: a processed event with a full ControllerState snapshot
  - ControllerState: value-type snapshot (sticks, triggers, ButtonSet)

Mapping:
  - MappingTable: key bindings, stick section bindings, channel bindings
  - Section: eight compass regions plus Center for stick position mapping
  - RadioChannel / ChannelFrame: the 12-channel radio frame model

Lifecycle:
  - EngineState: Initializing → Configured → Active → Deactivating → Terminated
  - ConnectionState: Disconnected → Connecting → Connected → Reconnecting,
    Closing terminal

Persistence:
  - SessionConfig: the complete schema-versioned session document
  - BrokerServer: broker profiles with PasswordEnv indirection (passwords
    are never embedded in the document)

# Errors

Sentinel errors (ErrInvalidTransition, ErrNotConnected, ErrChannelClosed,
ErrConfigValidation, ErrSchemaVersion, ErrDeviceDisconnected,
ErrSessionNotFound) are declared here so callers can match with errors.Is
across package boundaries.
*/
package types

package types

import "time"

// SchemaVersion is the version written into every persisted session
// document. Loading a document with any other version fails with
// ErrSchemaVersion.
const SchemaVersion = 1

// MessageDirection marks a broker message as sent or received.
type MessageDirection string

const (
	MessageInbound  MessageDirection = "inbound"
	MessageOutbound MessageDirection = "outbound"
)

// BrokerMessage is one timestamped broker exchange kept in the session
// history.
type BrokerMessage struct {
	Topic     string           `json:"topic"`
	Payload   string           `json:"payload"`
	Direction MessageDirection `json:"direction"`
	At        time.Time        `json:"at"`
}

// BrokerServer is one configured broker profile. The password is never
// embedded; PasswordEnv names the environment variable that holds it.
type BrokerServer struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username,omitempty"`
	PasswordEnv string `json:"password_env,omitempty"`
}

// BrokerConfig holds the active server, the saved server profiles, and the
// topic lists. SubscribedTopics is the subset of AvailableTopics the
// handler subscribes to on connect.
type BrokerConfig struct {
	Server           BrokerServer   `json:"server"`
	Servers          []BrokerServer `json:"servers,omitempty"`
	AvailableTopics  []string       `json:"available_topics,omitempty"`
	SubscribedTopics []string       `json:"subscribed_topics,omitempty"`
	AutoConnect      bool           `json:"auto_connect,omitempty"`
}

// RadioConfig holds the serial link parameters for the radio handler.
type RadioConfig struct {
	Port string `json:"port"`
	Baud int    `json:"baud"`
}

// EngineConfig describes one mapping engine in a session.
type EngineConfig struct {
	ID    string       `json:"id"`
	Kind  ProtocolKind `json:"kind"`
	Table MappingTable `json:"table"`
}

// UIPrefs are presentation preferences carried in the session for front
// ends; the core never interprets them beyond persistence.
type UIPrefs struct {
	Theme         string `json:"theme,omitempty"`
	ShowRawEvents bool   `json:"show_raw_events,omitempty"`
}

// SessionConfig is the complete persisted document: broker profiles, radio
// link parameters, engine configurations, UI preferences, and the broker
// message history.
type SessionConfig struct {
	SchemaVersion int             `json:"schema_version"`
	Name          string          `json:"name"`
	Broker        BrokerConfig    `json:"broker"`
	Radio         RadioConfig     `json:"radio"`
	Engines       []EngineConfig  `json:"engines,omitempty"`
	UI            UIPrefs         `json:"ui,omitempty"`
	Messages      []BrokerMessage `json:"messages,omitempty"`
	SavedAt       time.Time       `json:"saved_at,omitempty"`
}

// NewSessionConfig returns an empty session with the current schema
// version. No broker server is preset so nothing connects unprompted.
func NewSessionConfig(name string) *SessionConfig {
	return &SessionConfig{
		SchemaVersion: SchemaVersion,
		Name:          name,
	}
}

// Clone returns a deep copy. Persistence always operates on a clone so
// disk I/O never holds the live configuration lock.
func (s *SessionConfig) Clone() *SessionConfig {
	if s == nil {
		return nil
	}
	out := *s
	out.Broker.Servers = append([]BrokerServer(nil), s.Broker.Servers...)
	out.Broker.AvailableTopics = append([]string(nil), s.Broker.AvailableTopics...)
	out.Broker.SubscribedTopics = append([]string(nil), s.Broker.SubscribedTopics...)
	out.Messages = append([]BrokerMessage(nil), s.Messages...)
	out.Engines = make([]EngineConfig, 0, len(s.Engines))
	for _, e := range s.Engines {
		out.Engines = append(out.Engines, EngineConfig{
			ID:    e.ID,
			Kind:  e.Kind,
			Table: e.Table.Clone(),
		})
	}
	return &out
}

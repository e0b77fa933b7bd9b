package app

import (
	"context"
	"fmt"
	"time"

	"github.com/opencontroller/padbridge/pkg/flow"
	"github.com/opencontroller/padbridge/pkg/protocol"
	"github.com/opencontroller/padbridge/pkg/types"
)

type intentKind int

const (
	intentConnectBroker intentKind = iota
	intentDisconnectBroker
	intentPublish
	intentAddEngine
	intentRebind
	intentRemoveEngine
	intentLoadSession
)

type intentResult struct {
	engineID string
}

type intent struct {
	kind intentKind
	ctx  context.Context

	server   string
	msg      protocol.Message
	engineID string
	proto    types.ProtocolKind
	table    types.MappingTable
	name     string

	reply *flow.Reply[intentResult]
}

func (a *App) submit(ctx context.Context, in intent) (intentResult, error) {
	in.ctx = ctx
	in.reply = flow.NewReply[intentResult]()
	select {
	case a.intentCh <- in:
	case <-a.stopCh:
		return intentResult{}, fmt.Errorf("shutting down")
	case <-ctx.Done():
		return intentResult{}, ctx.Err()
	}
	return in.reply.Wait(ctx)
}

// ConnectBroker connects to the named broker profile, or to the session's
// active profile when name is empty. A profile switch tears down the
// previous connection first.
func (a *App) ConnectBroker(ctx context.Context, name string) error {
	_, err := a.submit(ctx, intent{kind: intentConnectBroker, server: name})
	return err
}

// DisconnectBroker disconnects the broker without tearing the handler
// down; reconnection stops.
func (a *App) DisconnectBroker(ctx context.Context) error {
	_, err := a.submit(ctx, intent{kind: intentDisconnectBroker})
	return err
}

// ConnectRadio brings the radio link up using the session's radio
// configuration.
func (a *App) ConnectRadio(ctx context.Context) error {
	return a.radio.Connect(ctx)
}

// DisconnectRadio takes the radio link down; reconnection stops.
func (a *App) DisconnectRadio(ctx context.Context) error {
	return a.radio.Disconnect(ctx)
}

// PublishMessage queues a broker publish and records it in the session's
// message history.
func (a *App) PublishMessage(ctx context.Context, topic string, payload []byte, retained bool) error {
	_, err := a.submit(ctx, intent{kind: intentPublish, msg: protocol.Message{
		Topic:    topic,
		Payload:  payload,
		Retained: retained,
		At:       time.Now(),
	}})
	return err
}

// AddEngine registers, configures, and activates a new mapping engine and
// records it in the session. It returns the generated engine ID.
func (a *App) AddEngine(ctx context.Context, kind types.ProtocolKind, table types.MappingTable) (string, error) {
	res, err := a.submit(ctx, intent{kind: intentAddEngine, proto: kind, table: table})
	return res.engineID, err
}

// Rebind installs a new mapping table on a running engine.
func (a *App) Rebind(ctx context.Context, engineID string, table types.MappingTable) error {
	_, err := a.submit(ctx, intent{kind: intentRebind, engineID: engineID, table: table})
	return err
}

// RemoveEngine deactivates an engine and removes it from the registry and
// the session.
func (a *App) RemoveEngine(ctx context.Context, engineID string) error {
	_, err := a.submit(ctx, intent{kind: intentRemoveEngine, engineID: engineID})
	return err
}

// LoadSession replaces the live session with a saved one and rebuilds the
// engine registry from it. Protocol connections are left as they are; the
// caller reconnects if the new session points elsewhere.
func (a *App) LoadSession(ctx context.Context, name string) error {
	_, err := a.submit(ctx, intent{kind: intentLoadSession, name: name})
	return err
}

func (a *App) intentLoop() {
	defer close(a.loopDone)
	for {
		select {
		case in := <-a.intentCh:
			a.handleIntent(in)
		case <-a.stopCh:
			for {
				select {
				case in := <-a.intentCh:
					in.reply.Deliver(intentResult{}, fmt.Errorf("shutting down"))
				default:
					return
				}
			}
		}
	}
}

func (a *App) handleIntent(in intent) {
	var (
		res intentResult
		err error
	)
	switch in.kind {
	case intentConnectBroker:
		err = a.connectBroker(in.ctx, in.server)
	case intentDisconnectBroker:
		if a.broker == nil {
			err = types.ErrNotConnected
		} else {
			err = a.broker.Disconnect(in.ctx)
		}
	case intentPublish:
		err = a.publish(in.msg)
	case intentAddEngine:
		res.engineID, err = a.addEngine(in.proto, in.table)
	case intentRebind:
		err = a.rebind(in.engineID, in.table)
	case intentRemoveEngine:
		err = a.removeEngine(in.engineID)
	case intentLoadSession:
		err = a.loadSession(in.ctx, in.name)
	}
	in.reply.Deliver(res, err)
}

func (a *App) connectBroker(ctx context.Context, name string) error {
	snap := a.live.Snapshot()
	server := snap.Broker.Server
	if name != "" && name != server.Name {
		found := false
		for _, s := range snap.Broker.Servers {
			if s.Name == name {
				server = s
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: no broker profile %q", types.ErrConfigValidation, name)
		}
		a.live.Update(func(cfg *types.SessionConfig) {
			cfg.Broker.Server = server
		})
	}
	if server.URL == "" {
		return fmt.Errorf("%w: broker URL not set", types.ErrConfigValidation)
	}

	if a.broker != nil {
		a.broker.Close()
		a.broker = nil
	}

	h := a.newBroker(server, snap.Broker.SubscribedTopics, a.cfg.Retry)
	h.Start()
	a.mirrorStatus(h.Status(), a.brokerStatus)
	a.pumpBrokerInbound(h)
	a.broker = h
	return h.Connect(ctx)
}

func (a *App) publish(msg protocol.Message) error {
	if a.broker == nil {
		return types.ErrNotConnected
	}
	if err := a.broker.Send(msg); err != nil {
		return err
	}
	a.live.AppendMessage(types.BrokerMessage{
		Topic:     msg.Topic,
		Payload:   string(msg.Payload),
		Direction: types.MessageOutbound,
		At:        msg.At,
	})
	return nil
}

func (a *App) addEngine(kind types.ProtocolKind, table types.MappingTable) (string, error) {
	eng, err := a.mapper.Register(kind)
	if err != nil {
		return "", err
	}
	if err := eng.Configure(table); err != nil {
		return "", err
	}
	if err := eng.Activate(); err != nil {
		return "", err
	}
	a.live.Update(func(cfg *types.SessionConfig) {
		cfg.Engines = append(cfg.Engines, types.EngineConfig{
			ID:    eng.ID(),
			Kind:  kind,
			Table: table.Clone(),
		})
	})
	return eng.ID(), nil
}

func (a *App) rebind(engineID string, table types.MappingTable) error {
	if err := a.mapper.Configure(engineID, table); err != nil {
		return err
	}
	a.live.Update(func(cfg *types.SessionConfig) {
		for i := range cfg.Engines {
			if cfg.Engines[i].ID == engineID {
				cfg.Engines[i].Table = table.Clone()
				return
			}
		}
	})
	return nil
}

func (a *App) removeEngine(engineID string) error {
	eng, ok := a.mapper.Engine(engineID)
	if !ok {
		return fmt.Errorf("%w: no engine %q", types.ErrConfigValidation, engineID)
	}
	if eng.State() == types.EngineActive {
		if err := eng.Deactivate(); err != nil {
			return err
		}
	}
	if err := a.mapper.Remove(engineID); err != nil {
		return err
	}
	a.live.Update(func(cfg *types.SessionConfig) {
		for i := range cfg.Engines {
			if cfg.Engines[i].ID == engineID {
				cfg.Engines = append(cfg.Engines[:i], cfg.Engines[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (a *App) loadSession(ctx context.Context, name string) error {
	// Drain the current registry first so the loaded session starts from
	// a clean slate.
	for _, eng := range a.mapper.List() {
		if eng.State() == types.EngineActive {
			if err := eng.Deactivate(); err != nil {
				a.logger.Warn().Err(err).Str("engine_id", eng.ID()).Msg("deactivate before load failed")
			}
		}
		if eng.State() == types.EngineTerminated {
			if err := a.mapper.Remove(eng.ID()); err != nil {
				a.logger.Warn().Err(err).Str("engine_id", eng.ID()).Msg("remove before load failed")
			}
		}
	}

	cfg, err := a.sessions.Load(ctx, name)
	if err != nil {
		return err
	}
	a.restoreEngines(cfg)
	return nil
}

package app

import (
	"github.com/opencontroller/padbridge/pkg/flow"
	"github.com/opencontroller/padbridge/pkg/protocol"
	"github.com/opencontroller/padbridge/pkg/types"
)

// mirrorStatus copies a handler's status broadcast into an app-level cell
// that outlives handler rebuilds. The goroutine ends when the handler
// closes its status value.
func (a *App) mirrorStatus(src, dst *flow.Value[protocol.Status]) {
	ch, cancel := src.Watch()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		for st := range ch {
			dst.Set(st)
		}
	}()
}

// pumpBrokerInbound records received broker messages in the session's
// message history until the handler closes.
func (a *App) pumpBrokerInbound(h *protocol.BrokerHandler) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for msg := range h.Inbound().C() {
			a.live.AppendMessage(types.BrokerMessage{
				Topic:     msg.Topic,
				Payload:   string(msg.Payload),
				Direction: types.MessageInbound,
				At:        msg.At,
			})
		}
	}()
}

// pumpTelemetry decodes link statistics frames off the radio handler and
// publishes them. Other telemetry types are ignored.
func (a *App) pumpTelemetry(h *protocol.RadioHandler) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for t := range h.Inbound().C() {
			stats, err := protocol.DecodeLinkStats(t)
			if err != nil {
				a.logger.Debug().Uint8("type", t.Type).Msg("telemetry frame skipped")
				continue
			}
			a.linkStats.Set(stats)
		}
	}()
}

// radioPump forwards mapped channel frames to the radio handler. Frames
// produced while the link is down are disposable and dropped; the mapping
// layer keeps emitting fresh ones.
func (a *App) radioPump() {
	defer close(a.pumpDone)
	for out := range a.mapper.Outputs(types.ProtocolRadio).C() {
		if !out.HasFrame {
			continue
		}
		_ = a.radio.Send(out.Frame)
	}
}

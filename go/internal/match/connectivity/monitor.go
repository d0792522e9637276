package connectivity

import (
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const updateBuffer = 16

// Monitor tracks the current connection state and fans changes out on a channel.
type Monitor struct {
	mu    sync.RWMutex
	state State
	ch    chan State
}

// NewMonitor returns a monitor that starts out connected.
func NewMonitor() *Monitor {
	return &Monitor{
		state: StateConnected,
		ch:    make(chan State, updateBuffer),
	}
}

// Set records s. Repeated states are ignored and a full channel drops the update.
func (m *Monitor) Set(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = s
	m.mu.Unlock()

	log.Info().
		Str("from", string(prev)).
		Str("to", string(s)).
		Msg("connectivity changed")

	select {
	case m.ch <- s:
	default:
		log.Warn().Str("state", string(s)).Msg("connectivity update dropped, channel full")
	}
}

func (m *Monitor) Updates() <-chan State { return m.ch }

func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// NATSOptions feeds NATS connection events into the monitor.
func (m *Monitor) NATSOptions() []nats.Option {
	return []nats.Option{
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
			if nc != nil && nc.IsReconnecting() {
				m.Set(StateReconnecting)
				return
			}
			m.Set(StateDisconnected)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			m.Set(StateConnected)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			m.Set(StateFailed)
		}),
	}
}

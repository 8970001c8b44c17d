package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/holopos/pkg/enums"
	"github.com/angelmondragon/holopos/pkg/logger"
)

const subscriberBuffer = 8

// Prober checks whether the backend is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

type MonitorParams struct {
	Logger        *logger.Logger
	Prober        Prober
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	StartOnline   bool
}

// Monitor tracks whether the till can reach the backend and fans transition
// events out to subscribers.
type Monitor struct {
	logg     *logger.Logger
	prober   Prober
	interval time.Duration
	timeout  time.Duration

	mu     sync.RWMutex
	online bool
	nextID int
	subs   map[int]chan enums.ConnectivityEvent
}

func NewMonitor(params MonitorParams) *Monitor {
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Monitor{
		logg:     params.Logger,
		prober:   params.Prober,
		interval: params.ProbeInterval,
		timeout:  params.ProbeTimeout,
		online:   params.StartOnline,
		subs:     map[int]chan enums.ConnectivityEvent{},
	}
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Set records the platform's connectivity signal. Subscribers only hear
// about actual transitions; the return value reports whether one happened.
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	event := enums.ConnectivityWentOffline
	if online {
		event = enums.ConnectivityWentOnline
	}
	dropped := 0
	for _, ch := range m.subs {
		select {
		case ch <- event:
		default:
			dropped++
		}
	}
	m.mu.Unlock()

	ctx := m.logg.WithField(context.Background(), "event", string(event))
	if dropped > 0 {
		m.logg.Warn(m.logg.WithField(ctx, "dropped", dropped), "connectivity subscribers lagging")
	}
	m.logg.Info(ctx, "connectivity changed")
	return true
}

// Subscribe returns a channel of transition events and a func that ends the
// subscription and closes the channel.
func (m *Monitor) Subscribe() (<-chan enums.ConnectivityEvent, func()) {
	ch := make(chan enums.ConnectivityEvent, subscriberBuffer)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Run re-checks reachability on every probe interval until ctx is done. It
// is optional; terminals with a reliable platform signal only call Set.
func (m *Monitor) Run(ctx context.Context) error {
	if m.prober == nil || m.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	m.Probe(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe pings the backend once and records the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.prober == nil {
		return m.IsOnline()
	}
	probeCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	err := m.prober.Ping(probeCtx)
	if err != nil && ctx.Err() != nil {
		// shutting down, not a connectivity change
		return m.IsOnline()
	}
	if err != nil {
		m.logg.Debug(m.logg.WithField(ctx, "error", err.Error()), "backend probe failed")
	}
	m.Set(err == nil)
	return err == nil
}

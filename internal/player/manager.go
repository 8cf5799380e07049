package player

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/SchumyHao/fhwise-bridge/internal/fhwise"
)

// DeviceConfig describes one device entry from configuration or
// discovery.
type DeviceConfig struct {
	Name     string
	Host     string
	Port     int
	Category string
	Timeout  time.Duration
}

// UpdateFunc receives a snapshot whenever a player's observable state
// changes.
type UpdateFunc func(Snapshot)

// stateKey is the comparable subset of a snapshot used for change
// detection.
type stateKey struct {
	state     string
	level     int
	muted     bool
	shuffle   bool
	soundMode string
	available bool
	track     int
}

func keyOf(s Snapshot) stateKey {
	k := stateKey{
		state:     s.State,
		level:     s.Level,
		muted:     s.Muted,
		shuffle:   s.Shuffle,
		soundMode: s.SoundMode,
		available: s.Available,
	}
	if s.Media != nil {
		k.track = s.Media.Track
	}
	return k
}

// Manager owns the configured players: the setup handshake with retry
// for devices that are not ready yet, the periodic state poll, and
// change notification.
type Manager struct {
	pollInterval time.Duration
	setupRetry   time.Duration
	logger       *log.Logger

	// dial builds the device connection for an entry. Swapped out in
	// tests.
	dial func(DeviceConfig) Conn

	mu       sync.Mutex
	playlist []Track
	players  map[string]*Player
	pending  []DeviceConfig
	known    map[string]bool
	last     map[string]stateKey
	onUpdate UpdateFunc
}

// NewManager builds a manager. Zero intervals fall back to 10s polling
// and 30s setup retries.
func NewManager(pollInterval, setupRetry time.Duration, logger *log.Logger) *Manager {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if setupRetry <= 0 {
		setupRetry = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		pollInterval: pollInterval,
		setupRetry:   setupRetry,
		logger:       logger,
		dial: func(dc DeviceConfig) Conn {
			return fhwise.NewClient(dc.Host, dc.Port, dc.Timeout)
		},
		players: make(map[string]*Player),
		known:   make(map[string]bool),
		last:    make(map[string]stateKey),
	}
}

// SetPlaylist replaces the default playlist handed to music players
// added after this call.
func (m *Manager) SetPlaylist(tracks []Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlist = append([]Track(nil), tracks...)
}

// OnUpdate registers the hook fired on player state changes.
func (m *Manager) OnUpdate(fn UpdateFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// Add registers a device. A device that fails the handshake is queued
// and retried on the setup-retry interval instead of being dropped.
func (m *Manager) Add(dc DeviceConfig) error {
	if dc.Host == "" {
		return fmt.Errorf("device %q has no host", dc.Name)
	}
	if dc.Port <= 0 {
		dc.Port = fhwise.DefaultPort
	}

	addr := fmt.Sprintf("%s:%d", dc.Host, dc.Port)
	m.mu.Lock()
	if m.known[addr] {
		m.mu.Unlock()
		return fmt.Errorf("device %s already configured", addr)
	}
	m.known[addr] = true
	m.mu.Unlock()

	m.attempt(dc)
	return nil
}

// AddDiscovered registers a device reported by discovery unless its
// address is already configured.
func (m *Manager) AddDiscovered(name, host string, port int) {
	if port <= 0 {
		port = fhwise.DefaultPort
	}
	if m.Knows(host, port) {
		return
	}
	m.logger.Printf("Manager: discovered %s at %s:%d", name, host, port)
	if err := m.Add(DeviceConfig{Name: name, Host: host, Port: port}); err != nil {
		m.logger.Printf("Manager: discovered device rejected: %v", err)
	}
}

// Knows reports whether a device address is already configured or
// pending.
func (m *Manager) Knows(host string, port int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.known[fmt.Sprintf("%s:%d", host, port)]
}

// Start launches the poll and setup-retry loops. Both stop when ctx is
// cancelled.
func (m *Manager) Start(ctx context.Context) {
	go m.pollLoop(ctx)
	go m.retryLoop(ctx)
}

// Get finds a player by unique id, falling back to display name.
func (m *Manager) Get(id string) (*Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[id]; ok {
		return p, true
	}
	for _, p := range m.players {
		if p.Name() == id {
			return p, true
		}
	}
	return nil, false
}

// Players returns the registered players sorted by name.
func (m *Manager) Players() []*Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Snapshots returns the current state of every player, sorted by name.
func (m *Manager) Snapshots() []Snapshot {
	players := m.Players()
	out := make([]Snapshot, 0, len(players))
	for _, p := range players {
		out = append(out, p.Snapshot())
	}
	return out
}

// Count returns the number of registered players.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.players)
}

// PendingCount returns the number of devices waiting on a setup retry.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// NotifyChanged fires the update hook when the player's observable
// state differs from the last notification.
func (m *Manager) NotifyChanged(p *Player) {
	s := p.Snapshot()
	key := keyOf(s)

	m.mu.Lock()
	prev, seen := m.last[s.UniqueID]
	if seen && prev == key {
		m.mu.Unlock()
		return
	}
	m.last[s.UniqueID] = key
	fn := m.onUpdate
	m.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

// Close disconnects every player.
func (m *Manager) Close() {
	for _, p := range m.Players() {
		p.Close()
	}
}

func (m *Manager) attempt(dc DeviceConfig) {
	err := m.setup(dc)
	if err == nil {
		return
	}
	if errors.Is(err, ErrNotReady) {
		m.logger.Printf("Manager: %s:%d not ready, will retry: %v", dc.Host, dc.Port, err)
		m.mu.Lock()
		m.pending = append(m.pending, dc)
		m.mu.Unlock()
		return
	}
	m.logger.Printf("Manager: adding %s:%d failed: %v", dc.Host, dc.Port, err)
}

func (m *Manager) setup(dc DeviceConfig) error {
	profile := ProfileFor(dc.Category)
	m.mu.Lock()
	if len(m.playlist) > 0 && profile.Category == CategoryMusic {
		profile.Tracks = append([]Track(nil), m.playlist...)
	}
	m.mu.Unlock()

	p := New(m.dial(dc), Config{
		Name:    dc.Name,
		Host:    dc.Host,
		Port:    dc.Port,
		Profile: profile,
		Logger:  m.logger,
	})
	if err := p.Setup(); err != nil {
		return err
	}

	// First refresh before registration is best effort; the device
	// answered the handshake, polling catches up later.
	if err := p.Update(); err != nil {
		m.logger.Printf("Manager: initial refresh of %s failed: %v", p.Name(), err)
	}

	m.mu.Lock()
	if _, ok := m.players[p.UniqueID()]; ok {
		m.mu.Unlock()
		return fmt.Errorf("player %s already registered", p.UniqueID())
	}
	m.players[p.UniqueID()] = p
	m.mu.Unlock()

	m.logger.Printf("Manager: added player %s (%s, %s:%d)", p.Name(), p.Model(), dc.Host, dc.Port)
	m.NotifyChanged(p)
	return nil
}

func (m *Manager) retryPending() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, dc := range pending {
		m.attempt(dc)
	}
}

func (m *Manager) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce()
		}
	}
}

func (m *Manager) retryLoop(ctx context.Context) {
	ticker := time.NewTicker(m.setupRetry)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.retryPending()
		}
	}
}

// pollOnce refreshes every player. Poll failures already flip the
// player's availability, which the change check picks up.
func (m *Manager) pollOnce() {
	for _, p := range m.Players() {
		p.Update()
		m.NotifyChanged(p)
	}
}

package player

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/SchumyHao/fhwise-bridge/internal/fhwise"
)

// Player states.
const (
	StatePlaying = "playing"
	StatePaused  = "paused"
	StateOff     = "off"
)

// DefaultName is used when a device entry has no display name.
const DefaultName = "fh wise media player"

// Device volume runs 0..15 in hardware units; the reported volume is
// the unit level scaled into 0..1.
const (
	volumeScale = 0.0625
	minLevel    = 0
	maxLevel    = 15
)

var (
	// ErrNotReady reports a failed setup handshake. The device may come
	// up later, so callers should retry instead of giving up.
	ErrNotReady = errors.New("player not ready")

	// ErrUnsupported reports a command outside the player's capability
	// profile.
	ErrUnsupported = errors.New("operation not supported")
)

// Conn is the device client a player drives. Calls are synchronous and
// the player serializes them, so implementations never see two calls
// in flight.
type Conn interface {
	Connect() error
	Disconnect() error
	SendHeartbeat() (string, error)
	SendPlayPause() error
	SetVolumeToggleMute() error
	SetVolumeLevel(level int) error
	GetPlayStatus() (int, error)
	GetVolumeLevel() (int, error)
}

// Config carries everything a player needs at construction. Zero
// values fall back to defaults (name, port, music profile, standard
// logger).
type Config struct {
	Name    string
	Host    string
	Port    int
	Model   string
	Profile Profile
	Logger  *log.Logger
}

// Player caches the last known device state and maps commands onto
// device calls. All device traffic goes through the player's mutex so
// no two calls overlap on the same connection.
type Player struct {
	conn    Conn
	profile Profile
	logger  *log.Logger

	name string
	host string
	port int

	mu        sync.RWMutex
	model     string
	uid       string
	state     string
	level     int
	muted     bool
	shuffle   bool
	soundMode string
	available bool
	skipNext  bool
	tracks    []Track
	track     int
}

// MediaInfo describes the current playlist entry.
type MediaInfo struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	Track       int    `json:"track"`
	ContentType string `json:"content_type"`
}

// Snapshot is a point-in-time copy of player state, safe to hold and
// serialize after the player moves on.
type Snapshot struct {
	Name       string     `json:"name"`
	UniqueID   string     `json:"unique_id"`
	Model      string     `json:"model"`
	Host       string     `json:"host"`
	Port       int        `json:"port"`
	Category   string     `json:"category"`
	State      string     `json:"state"`
	Volume     float64    `json:"volume"`
	Level      int        `json:"level"`
	Muted      bool       `json:"muted"`
	Shuffle    bool       `json:"shuffle"`
	SoundMode  string     `json:"sound_mode"`
	SoundModes []string   `json:"sound_modes"`
	Available  bool       `json:"available"`
	Media      *MediaInfo `json:"media,omitempty"`
}

// New builds a player around an existing device connection. The player
// starts unavailable; run Setup before polling it.
func New(conn Conn, cfg Config) *Player {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Port <= 0 {
		cfg.Port = fhwise.DefaultPort
	}
	if cfg.Profile.Category == "" {
		cfg.Profile = MusicProfile()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	p := &Player{
		conn:      conn,
		profile:   cfg.Profile,
		logger:    cfg.Logger,
		name:      cfg.Name,
		host:      cfg.Host,
		port:      cfg.Port,
		model:     cfg.Model,
		state:     StatePlaying,
		level:     1,
		soundMode: cfg.Profile.DefaultSoundMode,
		tracks:    append([]Track(nil), cfg.Profile.Tracks...),
	}
	if p.model != "" {
		p.uid = fmt.Sprintf("%s-%s", p.model, p.host)
	}
	return p
}

// Setup runs the connect/identify/disconnect handshake and records the
// device model. Failures wrap ErrNotReady so the caller can queue a
// retry instead of dropping the device.
func (p *Player) Setup() error {
	if err := p.conn.Connect(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	model, err := p.conn.SendHeartbeat()
	if err != nil {
		p.conn.Disconnect()
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	if err := p.conn.Disconnect(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	p.mu.Lock()
	p.model = model
	p.uid = fmt.Sprintf("%s-%s", model, p.host)
	p.mu.Unlock()

	p.logger.Printf("Player: %s detected at %s:%d", model, p.host, p.port)
	return nil
}

// Update refreshes cached state from the device. The device does not
// reflect a command synchronously, so the poll right after one is
// skipped; the skip is consumed whether or not the poll would have
// succeeded.
func (p *Player) Update() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.skipNext {
		p.skipNext = false
		return nil
	}

	status, err := p.conn.GetPlayStatus()
	if err != nil {
		p.available = false
		p.logger.Printf("Player: get play status failed for %s: %v", p.name, err)
		return fmt.Errorf("get play status: %w", err)
	}
	level, err := p.conn.GetVolumeLevel()
	if err != nil {
		p.available = false
		p.logger.Printf("Player: get volume level failed for %s: %v", p.name, err)
		return fmt.Errorf("get volume level: %w", err)
	}

	if status == fhwise.PlayStatusPlaying {
		p.state = StatePlaying
	} else {
		p.state = StatePaused
	}
	p.level = clampLevel(level)
	p.muted = p.level == 0
	p.available = true
	return nil
}

// TurnOn starts playback. No call is issued when already playing.
func (p *Player) TurnOn() error {
	return p.resume(CapTurnOn, "turn on")
}

// Play starts playback. No call is issued when already playing.
func (p *Player) Play() error {
	return p.resume(CapPlay, "play")
}

// TurnOff stops playback and marks the player off. No call is issued
// unless currently playing.
func (p *Player) TurnOff() error {
	return p.suspend(CapTurnOff, "turn off", StateOff)
}

// Pause stops playback. No call is issued unless currently playing.
func (p *Player) Pause() error {
	return p.suspend(CapPause, "pause", StatePaused)
}

// SetMute toggles device mute when the requested value differs from
// the cached one. The device only exposes a toggle, so the requested
// value becomes the cached state on success.
func (p *Player) SetMute(mute bool) error {
	if err := p.require(CapVolumeMute); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.muted == mute {
		return nil
	}
	if err := p.try("mute", p.conn.SetVolumeToggleMute); err != nil {
		return err
	}
	p.muted = mute
	p.skipNext = true
	return nil
}

// VolumeUp raises the level one unit. At the top of the range the call
// is still issued with the clamped level so device and cache stay
// aligned.
func (p *Player) VolumeUp() error {
	return p.stepVolume(1)
}

// VolumeDown lowers the level one unit, clamped at zero.
func (p *Player) VolumeDown() error {
	return p.stepVolume(-1)
}

// SetVolume sets the volume from a 0..1 fraction.
func (p *Player) SetVolume(volume float64) error {
	if err := p.require(CapVolumeSet); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setLevelLocked(clampLevel(int(volume / volumeScale)))
}

// SetShuffle flips the locally tracked shuffle flag. The device has no
// shuffle call.
func (p *Player) SetShuffle(shuffle bool) error {
	if err := p.require(CapShuffleSet); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shuffle = shuffle
	return nil
}

// SelectSoundMode switches to one of the profile's sound modes.
func (p *Player) SelectSoundMode(mode string) error {
	if err := p.require(CapSelectSoundMode); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range p.profile.SoundModes {
		if m == mode {
			p.soundMode = mode
			return nil
		}
	}
	return fmt.Errorf("%w: unknown sound mode %q", ErrUnsupported, mode)
}

// NextTrack advances the playlist cursor, stopping at the last track.
func (p *Player) NextTrack() error {
	if err := p.require(CapNextTrack); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track < len(p.tracks)-1 {
		p.track++
	}
	return nil
}

// PreviousTrack moves the playlist cursor back, stopping at the first
// track.
func (p *Player) PreviousTrack() error {
	if err := p.require(CapPreviousTrack); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track > 0 {
		p.track--
	}
	return nil
}

// ClearPlaylist empties the playlist and turns the player off locally.
func (p *Player) ClearPlaylist() error {
	if err := p.require(CapClearPlaylist); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = nil
	p.track = 0
	p.state = StateOff
	return nil
}

// SetTracks replaces the playlist and resets the cursor.
func (p *Player) SetTracks(tracks []Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append([]Track(nil), tracks...)
	p.track = 0
}

// Snapshot returns a copy of the current state.
func (p *Player) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{
		Name:       p.name,
		UniqueID:   p.uid,
		Model:      p.model,
		Host:       p.host,
		Port:       p.port,
		Category:   p.profile.Category,
		State:      p.state,
		Volume:     float64(p.level) * volumeScale,
		Level:      p.level,
		Muted:      p.muted,
		Shuffle:    p.shuffle,
		SoundMode:  p.soundMode,
		SoundModes: append([]string(nil), p.profile.SoundModes...),
		Available:  p.available,
	}
	if len(p.tracks) > 0 {
		t := p.tracks[p.track]
		s.Media = &MediaInfo{
			Title:       t.Title,
			Artist:      t.Artist,
			Album:       p.profile.Album,
			Track:       p.track + 1,
			ContentType: "music",
		}
	}
	return s
}

// Name returns the display name.
func (p *Player) Name() string {
	return p.name
}

// UniqueID returns the model-host identifier assigned at setup.
func (p *Player) UniqueID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.uid
}

// Model returns the device model reported by the handshake.
func (p *Player) Model() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// Host returns the configured device address.
func (p *Player) Host() string {
	return p.host
}

// Port returns the configured device port.
func (p *Player) Port() int {
	return p.port
}

// Available reports whether the last device exchange succeeded.
func (p *Player) Available() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.available
}

// Close drops the device connection.
func (p *Player) Close() error {
	return p.conn.Disconnect()
}

func (p *Player) resume(c Capability, action string) error {
	if err := p.require(c); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StatePlaying {
		return nil
	}
	if err := p.try(action, p.conn.SendPlayPause); err != nil {
		return err
	}
	p.state = StatePlaying
	p.skipNext = true
	return nil
}

func (p *Player) suspend(c Capability, action, next string) error {
	if err := p.require(c); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePlaying {
		return nil
	}
	if err := p.try(action, p.conn.SendPlayPause); err != nil {
		return err
	}
	p.state = next
	p.skipNext = true
	return nil
}

func (p *Player) stepVolume(delta int) error {
	if err := p.require(CapVolumeStep); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setLevelLocked(clampLevel(p.level + delta))
}

// setLevelLocked issues the device call for a pre-clamped level.
// Callers hold p.mu.
func (p *Player) setLevelLocked(level int) error {
	err := p.try("set volume", func() error {
		return p.conn.SetVolumeLevel(level)
	})
	if err != nil {
		return err
	}
	p.level = level
	p.skipNext = true
	return nil
}

// try runs one device call. On failure the player goes unavailable and
// cached state stays untouched. Callers hold p.mu.
func (p *Player) try(action string, call func() error) error {
	if err := call(); err != nil {
		p.available = false
		p.logger.Printf("Player: %s failed for %s: %v", action, p.name, err)
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}

func (p *Player) require(c Capability) error {
	if !p.profile.Support.Has(c) {
		return fmt.Errorf("%w for %s player", ErrUnsupported, p.profile.Category)
	}
	return nil
}

func clampLevel(level int) int {
	if level < minLevel {
		return minLevel
	}
	if level > maxLevel {
		return maxLevel
	}
	return level
}

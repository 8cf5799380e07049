// Package bridge maps the MQTT topic tree onto player commands and
// state publications.
//
// Topic layout (base topic "fhwise" by default):
//
//	fhwise/bridge/status                bridge "online"/"offline" (retained, set as LWT)
//	fhwise/player/<uid>/state           JSON snapshot (retained)
//	fhwise/player/<uid>/availability    "online"/"offline" (retained)
//	fhwise/player/<uid>/set             JSON command payloads
package bridge

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/SchumyHao/fhwise-bridge/internal/player"
)

// DefaultBaseTopic prefixes every topic the bridge touches.
const DefaultBaseTopic = "fhwise"

// Publisher is the broker surface the bridge publishes through.
type Publisher interface {
	Publish(topic string, payload []byte, retain bool)
}

// Players is the registry surface the bridge resolves commands
// against.
type Players interface {
	Get(id string) (*player.Player, bool)
	NotifyChanged(p *player.Player)
}

// Command is the payload accepted on a player's set topic.
type Command struct {
	Command string   `json:"command"`
	Level   *float64 `json:"level,omitempty"`
	Muted   *bool    `json:"muted,omitempty"`
	Shuffle *bool    `json:"shuffle,omitempty"`
	Mode    string   `json:"mode,omitempty"`
}

// Bridge translates between broker messages and players.
type Bridge struct {
	pub     Publisher
	players Players
	base    string
	logger  *log.Logger
}

// New builds a bridge over a publisher and a player registry.
func New(pub Publisher, players Players, base string, logger *log.Logger) *Bridge {
	if base == "" {
		base = DefaultBaseTopic
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Bridge{pub: pub, players: players, base: base, logger: logger}
}

// StatusTopic returns the bridge status topic for a base topic.
func StatusTopic(base string) string {
	if base == "" {
		base = DefaultBaseTopic
	}
	return base + "/bridge/status"
}

// CommandFilter returns the subscription filter covering every
// player's set topic.
func CommandFilter(base string) string {
	if base == "" {
		base = DefaultBaseTopic
	}
	return base + "/player/+/set"
}

// HandleMessage dispatches one command message. Malformed topics,
// unknown players, and bad payloads are logged and dropped; the broker
// offers no reply channel for them.
func (b *Bridge) HandleMessage(topic string, payload []byte) {
	uid, ok := b.parseCommandTopic(topic)
	if !ok {
		return
	}
	p, ok := b.players.Get(uid)
	if !ok {
		b.logger.Printf("Bridge: command for unknown player %q", uid)
		return
	}

	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Printf("Bridge: bad command payload on %s: %v", topic, err)
		return
	}

	if err := b.apply(p, cmd); err != nil {
		b.logger.Printf("Bridge: %s command failed for %s: %v", cmd.Command, p.Name(), err)
	}
	// Even a failed command can flip availability.
	b.players.NotifyChanged(p)
}

// PublishState pushes a snapshot to the player's state and
// availability topics. Both are retained so late subscribers see the
// last known state.
func (b *Bridge) PublishState(s player.Snapshot) {
	if s.UniqueID == "" {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		b.logger.Printf("Bridge: marshal state for %s: %v", s.Name, err)
		return
	}

	prefix := fmt.Sprintf("%s/player/%s", b.base, s.UniqueID)
	b.pub.Publish(prefix+"/state", data, true)

	avail := "offline"
	if s.Available {
		avail = "online"
	}
	b.pub.Publish(prefix+"/availability", []byte(avail), true)
}

func (b *Bridge) parseCommandTopic(topic string) (string, bool) {
	prefix := b.base + "/player/"
	rest := strings.TrimPrefix(topic, prefix)
	if rest == topic || !strings.HasSuffix(rest, "/set") {
		return "", false
	}
	uid := strings.TrimSuffix(rest, "/set")
	if uid == "" || strings.Contains(uid, "/") {
		return "", false
	}
	return uid, true
}

func (b *Bridge) apply(p *player.Player, cmd Command) error {
	switch cmd.Command {
	case "play":
		return p.Play()
	case "pause":
		return p.Pause()
	case "turn_on":
		return p.TurnOn()
	case "turn_off":
		return p.TurnOff()
	case "volume_up":
		return p.VolumeUp()
	case "volume_down":
		return p.VolumeDown()
	case "volume_set":
		if cmd.Level == nil {
			return fmt.Errorf("volume_set needs a level")
		}
		return p.SetVolume(*cmd.Level)
	case "mute":
		if cmd.Muted == nil {
			return fmt.Errorf("mute needs a muted flag")
		}
		return p.SetMute(*cmd.Muted)
	case "shuffle":
		if cmd.Shuffle == nil {
			return fmt.Errorf("shuffle needs a shuffle flag")
		}
		return p.SetShuffle(*cmd.Shuffle)
	case "sound_mode":
		return p.SelectSoundMode(cmd.Mode)
	case "next_track":
		return p.NextTrack()
	case "previous_track":
		return p.PreviousTrack()
	case "clear_playlist":
		return p.ClearPlaylist()
	case "refresh":
		return p.Update()
	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
}

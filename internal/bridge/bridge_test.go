package bridge

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/SchumyHao/fhwise-bridge/internal/player"
)

type fakeConn struct {
	status int
	level  int
	fail   bool

	playPauses int
	mutes      int
	setLevels  []int
}

func (f *fakeConn) Connect() error    { return nil }
func (f *fakeConn) Disconnect() error { return nil }

func (f *fakeConn) SendHeartbeat() (string, error) { return "FH-W100", nil }

func (f *fakeConn) SendPlayPause() error {
	if f.fail {
		return errors.New("device gone")
	}
	f.playPauses++
	return nil
}

func (f *fakeConn) SetVolumeToggleMute() error {
	if f.fail {
		return errors.New("device gone")
	}
	f.mutes++
	return nil
}

func (f *fakeConn) SetVolumeLevel(level int) error {
	if f.fail {
		return errors.New("device gone")
	}
	f.setLevels = append(f.setLevels, level)
	return nil
}

func (f *fakeConn) GetPlayStatus() (int, error) {
	if f.fail {
		return 0, errors.New("device gone")
	}
	return f.status, nil
}

func (f *fakeConn) GetVolumeLevel() (int, error) {
	if f.fail {
		return 0, errors.New("device gone")
	}
	return f.level, nil
}

type fakeRegistry struct {
	players  map[string]*player.Player
	notified int
}

func (r *fakeRegistry) Get(id string) (*player.Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

func (r *fakeRegistry) NotifyChanged(p *player.Player) {
	r.notified++
}

type publishedMsg struct {
	topic   string
	payload string
	retain  bool
}

type fakePublisher struct {
	msgs []publishedMsg
}

func (f *fakePublisher) Publish(topic string, payload []byte, retain bool) {
	f.msgs = append(f.msgs, publishedMsg{topic, string(payload), retain})
}

func newTestBridge(t *testing.T) (*Bridge, *fakeRegistry, *fakeConn, *fakePublisher) {
	t.Helper()
	conn := &fakeConn{status: 1, level: 8}
	p := player.New(conn, player.Config{
		Name:   "den",
		Host:   "192.0.2.10",
		Model:  "FH-W100",
		Logger: log.New(io.Discard, "", 0),
	})
	reg := &fakeRegistry{players: map[string]*player.Player{p.UniqueID(): p}}
	pub := &fakePublisher{}
	return New(pub, reg, "", log.New(io.Discard, "", 0)), reg, conn, pub
}

func TestParseCommandTopic(t *testing.T) {
	b, _, _, _ := newTestBridge(t)

	tests := []struct {
		topic string
		uid   string
		ok    bool
	}{
		{"fhwise/player/FH-W100-192.0.2.10/set", "FH-W100-192.0.2.10", true},
		{"fhwise/player/abc/set", "abc", true},
		{"fhwise/player/set", "", false},
		{"fhwise/player//set", "", false},
		{"fhwise/player/a/b/set", "", false},
		{"fhwise/bridge/status", "", false},
		{"other/player/abc/set", "", false},
		{"fhwise/player/abc/state", "", false},
	}

	for _, tt := range tests {
		uid, ok := b.parseCommandTopic(tt.topic)
		if ok != tt.ok || uid != tt.uid {
			t.Errorf("parseCommandTopic(%q) = %q, %v, want %q, %v", tt.topic, uid, ok, tt.uid, tt.ok)
		}
	}
}

func TestHandleMessageDispatchesCommands(t *testing.T) {
	b, reg, conn, _ := newTestBridge(t)
	topic := "fhwise/player/FH-W100-192.0.2.10/set"

	b.HandleMessage(topic, []byte(`{"command":"pause"}`))
	if conn.playPauses != 1 {
		t.Fatalf("expected 1 play/pause call, got %d", conn.playPauses)
	}
	if reg.notified != 1 {
		t.Fatalf("expected 1 change notification, got %d", reg.notified)
	}

	b.HandleMessage(topic, []byte(`{"command":"volume_set","level":0.5}`))
	if len(conn.setLevels) != 1 || conn.setLevels[0] != 8 {
		t.Fatalf("expected volume level 8, got %v", conn.setLevels)
	}

	b.HandleMessage(topic, []byte(`{"command":"mute","muted":true}`))
	if conn.mutes != 1 {
		t.Fatalf("expected 1 mute toggle, got %d", conn.mutes)
	}

	b.HandleMessage(topic, []byte(`{"command":"sound_mode","mode":"Movie"}`))
	p, _ := reg.Get("FH-W100-192.0.2.10")
	if p.Snapshot().SoundMode != "Movie" {
		t.Errorf("expected sound mode Movie, got %q", p.Snapshot().SoundMode)
	}
}

func TestHandleMessageUnknownCommand(t *testing.T) {
	b, reg, conn, _ := newTestBridge(t)

	b.HandleMessage("fhwise/player/FH-W100-192.0.2.10/set", []byte(`{"command":"dance"}`))
	if conn.playPauses != 0 || conn.mutes != 0 || len(conn.setLevels) != 0 {
		t.Error("unknown command should not reach the device")
	}
	if reg.notified != 1 {
		t.Errorf("expected the notify pass to still run, got %d", reg.notified)
	}
}

func TestHandleMessageBadPayload(t *testing.T) {
	b, reg, conn, _ := newTestBridge(t)

	b.HandleMessage("fhwise/player/FH-W100-192.0.2.10/set", []byte(`{not json`))
	if conn.playPauses != 0 {
		t.Error("bad payload should not reach the device")
	}
	if reg.notified != 0 {
		t.Errorf("expected no notification for a dropped payload, got %d", reg.notified)
	}
}

func TestHandleMessageUnknownPlayer(t *testing.T) {
	b, reg, _, _ := newTestBridge(t)

	b.HandleMessage("fhwise/player/nobody/set", []byte(`{"command":"play"}`))
	if reg.notified != 0 {
		t.Errorf("expected no notification for an unknown player, got %d", reg.notified)
	}
}

func TestHandleMessageMissingArgument(t *testing.T) {
	b, _, conn, _ := newTestBridge(t)

	b.HandleMessage("fhwise/player/FH-W100-192.0.2.10/set", []byte(`{"command":"volume_set"}`))
	if len(conn.setLevels) != 0 {
		t.Error("volume_set without a level should not reach the device")
	}
}

func TestPublishState(t *testing.T) {
	b, reg, _, pub := newTestBridge(t)
	p, _ := reg.Get("FH-W100-192.0.2.10")

	b.PublishState(p.Snapshot())
	if len(pub.msgs) != 2 {
		t.Fatalf("expected state and availability messages, got %d", len(pub.msgs))
	}

	state := pub.msgs[0]
	if state.topic != "fhwise/player/FH-W100-192.0.2.10/state" {
		t.Errorf("unexpected state topic %q", state.topic)
	}
	if !state.retain {
		t.Error("expected state to be retained")
	}
	var decoded player.Snapshot
	if err := json.Unmarshal([]byte(state.payload), &decoded); err != nil {
		t.Fatalf("state payload is not valid JSON: %v", err)
	}
	if decoded.State != player.StatePlaying {
		t.Errorf("expected playing in payload, got %q", decoded.State)
	}

	avail := pub.msgs[1]
	if !strings.HasSuffix(avail.topic, "/availability") || avail.payload != "offline" {
		t.Errorf("expected offline availability before first poll, got %q on %q", avail.payload, avail.topic)
	}
	if !avail.retain {
		t.Error("expected availability to be retained")
	}
}

func TestPublishStateAvailability(t *testing.T) {
	b, reg, _, pub := newTestBridge(t)
	p, _ := reg.Get("FH-W100-192.0.2.10")

	if err := p.Update(); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	b.PublishState(p.Snapshot())

	avail := pub.msgs[len(pub.msgs)-1]
	if avail.payload != "online" {
		t.Errorf("expected online after a healthy poll, got %q", avail.payload)
	}
}

func TestTopicHelpers(t *testing.T) {
	if got := StatusTopic(""); got != "fhwise/bridge/status" {
		t.Errorf("StatusTopic default = %q", got)
	}
	if got := StatusTopic("media"); got != "media/bridge/status" {
		t.Errorf("StatusTopic(media) = %q", got)
	}
	if got := CommandFilter(""); got != "fhwise/player/+/set" {
		t.Errorf("CommandFilter default = %q", got)
	}
	if got := CommandFilter("media"); got != "media/player/+/set" {
		t.Errorf("CommandFilter(media) = %q", got)
	}
}

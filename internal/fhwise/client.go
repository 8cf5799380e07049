package fhwise

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultPort is the control port fhwise players listen on.
	DefaultPort = 8080

	// PlayStatusPlaying is the status code reported while a track is
	// playing. Any other value means paused/stopped.
	PlayStatusPlaying = 1

	defaultTimeout = 5 * time.Second
)

// DeviceError is a request the player accepted but refused to apply
// (nonzero response code).
type DeviceError struct {
	Code    int
	Message string
}

func (e *DeviceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("device error %d", e.Code)
	}
	return fmt.Sprintf("device error %d: %s", e.Code, e.Message)
}

// request is one command frame. Frames are JSON objects, one per line.
type request struct {
	ID    uint64 `json:"id"`
	Cmd   string `json:"cmd"`
	Level *int   `json:"level,omitempty"`
}

// response is the player's reply. Fields beyond id/code are
// command-specific; unknown fields are ignored.
type response struct {
	ID      uint64 `json:"id"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Model   string `json:"model,omitempty"`
	Status  int    `json:"status"`
	Level   int    `json:"level"`
}

// Client speaks the fhwise control protocol: strict request/response,
// newline-delimited JSON frames, one TCP connection per device. Calls
// are serialized by a mutex so two exchanges never interleave on the
// wire.
type Client struct {
	host    string
	port    int
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID uint64
}

// NewClient creates a client for the player at host:port. A zero port
// means DefaultPort; a zero timeout means 5 seconds per call.
func NewClient(host string, port int, timeout time.Duration) *Client {
	if port <= 0 {
		port = DefaultPort
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{host: host, port: port, timeout: timeout}
}

// Addr returns the device address in host:port form.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Connect dials the device. Commands also dial lazily, so Connect is
// only needed when the caller wants the reachability check up front.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.Addr(), c.timeout)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.Addr(), err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// Disconnect closes the connection. Safe to call when not connected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// dropLocked tears the connection down after an I/O failure so the
// next call redials.
func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

// call sends one request and waits for its reply, reconnecting first
// if needed.
func (c *Client) call(cmd string, level *int) (*response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	c.nextID++
	req := request{ID: c.nextID, Cmd: cmd, Level: level}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", cmd, err)
	}
	data = append(data, '\n')

	c.conn.SetDeadline(time.Now().Add(c.timeout))
	if _, err := c.conn.Write(data); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("send %s: %w", cmd, err)
	}

	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			c.dropLocked()
			return nil, fmt.Errorf("read %s reply: %w", cmd, err)
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			c.dropLocked()
			return nil, fmt.Errorf("decode %s reply: %w", cmd, err)
		}
		// A reply left over from a timed-out earlier exchange is skipped.
		if resp.ID != 0 && resp.ID != req.ID {
			continue
		}
		if resp.Code != 0 {
			return nil, &DeviceError{Code: resp.Code, Message: resp.Message}
		}
		return &resp, nil
	}
}

// SendHeartbeat asks the device to identify itself and returns the
// model string.
func (c *Client) SendHeartbeat() (string, error) {
	resp, err := c.call("heartbeat", nil)
	if err != nil {
		return "", err
	}
	return resp.Model, nil
}

// SendPlayPause toggles the device between playing and paused.
func (c *Client) SendPlayPause() error {
	_, err := c.call("play_pause", nil)
	return err
}

// SetVolumeToggleMute toggles the device mute relay.
func (c *Client) SetVolumeToggleMute() error {
	_, err := c.call("toggle_mute", nil)
	return err
}

// SetVolumeLevel sets the hardware volume in device units (0-15).
func (c *Client) SetVolumeLevel(level int) error {
	_, err := c.call("set_volume", &level)
	return err
}

// GetPlayStatus returns the raw play status code.
func (c *Client) GetPlayStatus() (int, error) {
	resp, err := c.call("play_status", nil)
	if err != nil {
		return 0, err
	}
	return resp.Status, nil
}

// GetVolumeLevel returns the hardware volume in device units (0-15).
func (c *Client) GetVolumeLevel() (int, error) {
	resp, err := c.call("get_volume", nil)
	if err != nil {
		return 0, err
	}
	return resp.Level, nil
}

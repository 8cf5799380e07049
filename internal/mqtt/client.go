package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// MessageHandler is called for every message on a subscribed topic.
type MessageHandler func(topic string, payload []byte)

// Client handles the MQTT connection to the broker. Subscriptions are
// re-established every time the connection comes up.
type Client struct {
	client    paho.Client
	mu        sync.RWMutex
	connected bool
	handler   MessageHandler

	subscriptions []string
	birthTopic    string
	birthPayload  string
}

// Config holds MQTT connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string

	// Subscriptions are topic filters subscribed on every connect.
	Subscriptions []string

	// WillTopic announces an unclean exit; BirthTopic is published
	// retained after each successful connect.
	WillTopic    string
	WillPayload  string
	BirthTopic   string
	BirthPayload string
}

// NewClient creates a new MQTT client.
func NewClient(cfg Config) *Client {
	c := &Client{
		subscriptions: cfg.Subscriptions,
		birthTopic:    cfg.BirthTopic,
		birthPayload:  cfg.BirthPayload,
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	if cfg.WillTopic != "" {
		opts.SetWill(cfg.WillTopic, cfg.WillPayload, 1, true)
	}

	opts.SetOnConnectHandler(func(client paho.Client) {
		log.Println("MQTT connected")
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		c.subscribeAll()
		c.publishBirth()
	})

	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	})

	c.client = paho.NewClient(opts)
	return c
}

// Connect starts the MQTT connection.
func (c *Client) Connect() error {
	token := c.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT connect failed: %w", err)
	}
	return nil
}

// SetMessageHandler sets the callback for incoming messages.
func (c *Client) SetMessageHandler(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// subscribeAll subscribes to the configured topic filters.
func (c *Client) subscribeAll() {
	for _, topic := range c.subscriptions {
		token := c.client.Subscribe(topic, 1, c.route)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("Failed to subscribe to %s: %v", topic, err)
		} else {
			log.Printf("Subscribed to MQTT topic: %s", topic)
		}
	}
}

// publishBirth announces the bridge on its status topic.
func (c *Client) publishBirth() {
	if c.birthTopic == "" {
		return
	}
	token := c.client.Publish(c.birthTopic, 1, true, c.birthPayload)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Printf("MQTT birth publish failed: %v", err)
	}
}

// route hands an incoming message to the registered handler.
func (c *Client) route(client paho.Client, msg paho.Message) {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler != nil {
		handler(msg.Topic(), msg.Payload())
	}
}

// Publish sends a payload at QoS 1. Messages are dropped while the
// broker is unreachable; retained topics recover on reconnect.
func (c *Client) Publish(topic string, payload []byte, retain bool) {
	if !c.IsConnected() {
		return
	}
	token := c.client.Publish(topic, 1, retain, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Printf("MQTT publish to %s failed: %v", topic, err)
	}
}

// IsConnected returns the connection status.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Disconnect closes the MQTT connection.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

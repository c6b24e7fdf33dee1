// Package mqtt publishes monitor events to an MQTT broker, for running
// cardwatch as an unattended agent.
package mqtt

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"cardwatch/scard"
)

// Config holds broker connection settings.
type Config struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	ClientID  string `yaml:"client_id"`
	TopicRoot string `yaml:"topic_root"`
	Disabled  bool   `yaml:"disabled"`
}

// Handlers holds callback functions for connection events.
type Handlers struct {
	OnConnect        func()
	OnConnectionLost func(error)
}

// Client wraps the paho client with event publishing. A disabled client is
// a no-op, so callers never need to branch on configuration.
type Client struct {
	client    paho.Client
	topicRoot string
	enabled   bool
	onConnect func()
	onLost    func(error)
}

// New creates a client for the given broker. A disabled config (or an empty
// host) yields a no-op client.
func New(cfg Config, handlers Handlers) *Client {
	c := &Client{
		topicRoot: cfg.TopicRoot,
		onConnect: handlers.OnConnect,
		onLost:    handlers.OnConnectionLost,
	}
	if c.topicRoot == "" {
		c.topicRoot = "cardwatch"
	}
	if cfg.Disabled || cfg.Host == "" {
		log.Info("mqtt disabled, events will not be published")
		return c
	}
	c.enabled = true

	if cfg.Port == 0 {
		cfg.Port = 1883
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "cardwatch"
	}
	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(60 * time.Second).
		SetOnConnectHandler(c.handleConnect).
		SetConnectionLostHandler(c.handleConnectionLost)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	c.client = paho.NewClient(opts)
	return c
}

// Connect connects to the broker. A disabled client reports success and
// fires OnConnect so callers see the same sequence either way.
func (c *Client) Connect() error {
	if !c.enabled {
		if c.onConnect != nil {
			c.onConnect()
		}
		return nil
	}
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect: %w", token.Error())
	}
	return nil
}

// Close disconnects from the broker. No-op when disabled.
func (c *Client) Close() {
	if !c.enabled || c.client == nil {
		return
	}
	c.client.Disconnect(250)
}

// PublishEvent publishes one monitor event to <root>/event/<kind>, QoS 1,
// not retained.
func (c *Client) PublishEvent(ev scard.Event) error {
	if !c.enabled {
		return nil
	}
	topic, payload, err := eventMessage(c.topicRoot, ev, time.Now())
	if err != nil {
		return err
	}
	if token := c.client.Publish(topic, 1, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	return nil
}

type eventPayload struct {
	Reader string `json:"reader,omitempty"`
	State  string `json:"state,omitempty"`
	ATR    string `json:"atr,omitempty"`
	Error  string `json:"error,omitempty"`
	At     string `json:"at"`
}

func eventMessage(root string, ev scard.Event, at time.Time) (string, []byte, error) {
	p := eventPayload{
		Reader: ev.Reader,
		At:     at.Format(time.RFC3339),
	}
	if ev.State != scard.StateUnaware {
		p.State = ev.State.String()
	}
	if len(ev.ATR) > 0 {
		p.ATR = hex.EncodeToString(ev.ATR)
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s/event/%s", root, ev.Kind), payload, nil
}

func (c *Client) handleConnect(paho.Client) {
	log.Info("mqtt connected")
	if c.onConnect != nil {
		c.onConnect()
	}
}

func (c *Client) handleConnectionLost(_ paho.Client, err error) {
	log.Warnf("mqtt connection lost: %v", err)
	if c.onLost != nil {
		c.onLost(err)
	}
}

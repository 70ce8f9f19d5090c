package feed

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/afroash/smoker-monitor/internal/models"
)

// ConnectionState represents the current state of the broker connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// BrokerConfig holds the settings for an MQTT broker connection
type BrokerConfig struct {
	Address        string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	// SessionExpiry keeps a subscriber's session, and the readings queued
	// for it, on the broker this long after a disconnect. Zero discards the
	// session at disconnect. Publishers always start clean.
	SessionExpiry time.Duration
}

// TopicFor returns the topic a station's readings are delivered on
func TopicFor(prefix string, station models.StationID) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return string(station)
	}
	return prefix + "/" + string(station)
}

// ChannelFromTopic strips the prefix from a topic, leaving the station name
func ChannelFromTopic(prefix, topic string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return topic
	}
	return strings.TrimPrefix(topic, prefix+"/")
}

// brokerConn is the connection shared by Publisher and Subscriber
type brokerConn struct {
	config     BrokerConfig
	logger     zerolog.Logger
	client     *paho.Client
	state      ConnectionState
	stateMutex sync.RWMutex
	done       chan error
	doneOnce   sync.Once
}

func newBrokerConn(config BrokerConfig, logger zerolog.Logger) *brokerConn {
	if config.ClientID == "" {
		config.ClientID = "smoker-" + uuid.NewString()[:8]
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.KeepAlive <= 0 {
		config.KeepAlive = 30 * time.Second
	}
	return &brokerConn{
		config: config,
		logger: logger.With().Str("broker", config.Address).Str("client_id", config.ClientID).Logger(),
		state:  StateDisconnected,
		done:   make(chan error, 1),
	}
}

// setState safely updates the connection state
func (c *brokerConn) setState(state ConnectionState) {
	c.stateMutex.Lock()
	c.state = state
	c.stateMutex.Unlock()
	c.logger.Info().Str("state", state.String()).Msg("Connection state updated")
}

// State returns the current connection state
func (c *brokerConn) State() ConnectionState {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.state
}

// IsConnected returns true if currently connected
func (c *brokerConn) IsConnected() bool {
	return c.State() == StateConnected
}

// Done delivers the error that ended the connection after a successful
// connect: a client error or a server disconnect.
func (c *brokerConn) Done() <-chan error {
	return c.done
}

func (c *brokerConn) fail(err error) {
	c.doneOnce.Do(func() {
		c.setState(StateDisconnected)
		c.logger.Error().Err(err).Msg("Broker connection lost")
		c.done <- err
	})
}

// connect dials the broker and performs the MQTT handshake
func (c *brokerConn) connect(ctx context.Context, onPublish func(paho.PublishReceived) (bool, error), persistent bool) error {
	c.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", c.config.Address)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("dial %s failed: %w", c.config.Address, err)
	}

	clientConfig := paho.ClientConfig{
		ClientID: c.config.ClientID,
		Conn:     conn,
		OnClientError: func(err error) {
			c.fail(fmt.Errorf("client error: %w", err))
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			c.fail(fmt.Errorf("server disconnected with reason code %d", d.ReasonCode))
		},
	}
	if onPublish != nil {
		clientConfig.OnPublishReceived = []func(paho.PublishReceived) (bool, error){onPublish}
	}
	client := paho.NewClient(clientConfig)

	cp := &paho.Connect{
		ClientID:   c.config.ClientID,
		KeepAlive:  uint16(c.config.KeepAlive / time.Second),
		CleanStart: true,
	}
	if persistent && c.config.SessionExpiry > 0 {
		expiry := uint32(c.config.SessionExpiry / time.Second)
		cp.CleanStart = false
		cp.Properties = &paho.ConnectProperties{SessionExpiryInterval: &expiry}
	}
	if c.config.Username != "" {
		cp.Username = c.config.Username
		cp.UsernameFlag = true
	}
	if c.config.Password != "" {
		cp.Password = []byte(c.config.Password)
		cp.PasswordFlag = true
	}

	ca, err := client.Connect(dialCtx, cp)
	if err != nil {
		conn.Close()
		c.setState(StateDisconnected)
		return fmt.Errorf("mqtt connect failed: %w", err)
	}
	if !cp.CleanStart {
		c.logger.Info().Bool("session_present", ca.SessionPresent).Msg("Resumed broker session")
	}

	c.client = client
	c.setState(StateConnected)
	return nil
}

// Close disconnects from the broker
func (c *brokerConn) Close() error {
	if c.client == nil {
		return nil
	}
	c.doneOnce.Do(func() { close(c.done) })
	c.setState(StateDisconnected)
	if err := c.client.Disconnect(&paho.Disconnect{ReasonCode: 0}); err != nil {
		return fmt.Errorf("mqtt disconnect failed: %w", err)
	}
	c.logger.Info().Msg("Connection closed")
	return nil
}

// Publisher sends framed readings to the per-station topics
type Publisher struct {
	*brokerConn
}

// NewPublisher creates a publisher; call Connect before Publish
func NewPublisher(config BrokerConfig, logger zerolog.Logger) *Publisher {
	return &Publisher{brokerConn: newBrokerConn(config, logger)}
}

// Connect establishes the broker connection
func (p *Publisher) Connect(ctx context.Context) error {
	return p.connect(ctx, nil, false)
}

// Publish sends payload on the station's topic
func (p *Publisher) Publish(ctx context.Context, station models.StationID, payload []byte) error {
	if !p.IsConnected() {
		return fmt.Errorf("not connected")
	}
	topic := TopicFor(p.config.TopicPrefix, station)
	_, err := p.client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     p.config.QoS,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}
	p.logger.Debug().Str("topic", topic).Bytes("payload", payload).Msg("Sent message")
	return nil
}

// Subscriber receives framed readings from the per-station topics
type Subscriber struct {
	*brokerConn
	messages chan models.RawMessage
	closed   chan struct{}
	once     sync.Once
}

// NewSubscriber creates a subscriber whose message channel holds bufferSize messages
func NewSubscriber(config BrokerConfig, bufferSize int, logger zerolog.Logger) *Subscriber {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Subscriber{
		brokerConn: newBrokerConn(config, logger),
		messages:   make(chan models.RawMessage, bufferSize),
		closed:     make(chan struct{}),
	}
}

// Connect establishes the broker connection
func (s *Subscriber) Connect(ctx context.Context) error {
	return s.connect(ctx, s.onPublish, true)
}

// Subscribe subscribes to the topic of every station
func (s *Subscriber) Subscribe(ctx context.Context, stations []models.StationID) error {
	if !s.IsConnected() {
		return fmt.Errorf("not connected")
	}

	subs := make([]paho.SubscribeOptions, 0, len(stations))
	for _, station := range stations {
		subs = append(subs, paho.SubscribeOptions{
			Topic: TopicFor(s.config.TopicPrefix, station),
			QoS:   s.config.QoS,
		})
	}

	suback, err := s.client.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs})
	if err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}
	for i, code := range suback.Reasons {
		if code >= 0x80 && i < len(subs) {
			return fmt.Errorf("subscribe to %s rejected with reason code %d", subs[i].Topic, code)
		}
	}

	for _, sub := range subs {
		s.logger.Info().Str("topic", sub.Topic).Msg("Subscribed")
	}
	return nil
}

// Messages returns the channel incoming messages are delivered on, in
// arrival order
func (s *Subscriber) Messages() <-chan models.RawMessage {
	return s.messages
}

// onPublish hands a received publish to the message channel, blocking until
// the dispatcher accepts it so that arrival order is kept.
func (s *Subscriber) onPublish(pr paho.PublishReceived) (bool, error) {
	msg := models.RawMessage{
		Channel:    ChannelFromTopic(s.config.TopicPrefix, pr.Packet.Topic),
		Payload:    pr.Packet.Payload,
		ReceivedAt: time.Now(),
	}
	select {
	case s.messages <- msg:
	case <-s.closed:
	}
	return true, nil
}

// Close stops delivery and disconnects from the broker
func (s *Subscriber) Close() error {
	s.once.Do(func() { close(s.closed) })
	return s.brokerConn.Close()
}

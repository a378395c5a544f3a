package notify

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"tryon-compositor/internal/measure"
	"tryon-compositor/internal/pipeline"
)

// Event names, also used as the last topic segment.
const (
	EventNoPose         = "no-pose"
	EventScanStarted    = "scan-started"
	EventMeasurement    = "measurement"
	EventBackgroundMode = "background-mode"
)

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"client_id"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	QoS         byte          `mapstructure:"qos"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Envelope is the JSON body of every published event.
type Envelope struct {
	Event string    `json:"event"`
	Time  time.Time `json:"time"`
	Data  any       `json:"data,omitempty"`
}

// publisher is the part of mqtt.Client the notifier needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes events to <prefix>/<event>.
type MQTT struct {
	cfg    MQTTConfig
	client publisher
	conn   mqtt.Client
	log    *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	connected bool
	published map[string]uint64
	errors    uint64
}

// MQTTStats counts publishes.
type MQTTStats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// NewMQTT returns an unconnected notifier. Call Connect before publishing.
func NewMQTT(cfg MQTTConfig, log *zap.Logger) *MQTT {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "tryon"
	}
	return &MQTT{
		cfg:       cfg,
		log:       log.Named("mqtt"),
		now:       time.Now,
		published: make(map[string]uint64),
	}
}

// Connect dials the broker with automatic reconnection.
func (n *MQTT) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", n.cfg.Broker))
	opts.SetClientID(n.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		n.setConnected(true)
		n.log.Info("mqtt connected", zap.String("broker", n.cfg.Broker), zap.String("client_id", n.cfg.ClientID))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		n.setConnected(false)
		n.log.Warn("mqtt connection lost, reconnecting", zap.Error(err), zap.String("broker", n.cfg.Broker))
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("notify: mqtt connect %s: timeout", n.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("notify: mqtt connect %s: %w", n.cfg.Broker, err)
	}
	n.conn = c
	n.client = c
	n.setConnected(true)
	return nil
}

// Disconnect closes the broker connection.
func (n *MQTT) Disconnect() {
	if n.conn != nil && n.conn.IsConnected() {
		n.conn.Disconnect(250)
		n.log.Info("mqtt disconnected")
	}
	n.setConnected(false)
}

func (n *MQTT) NoPose(frames int) error {
	return n.publish(EventNoPose, map[string]int{"frames": frames})
}

func (n *MQTT) ScanStarted() error {
	return n.publish(EventScanStarted, nil)
}

func (n *MQTT) MeasurementUpdated(r measure.Result) error {
	return n.publish(EventMeasurement, r)
}

func (n *MQTT) BackgroundModeChanged(mode pipeline.Mode) error {
	return n.publish(EventBackgroundMode, map[string]string{"mode": string(mode)})
}

// Stats returns a snapshot of the publish counters.
func (n *MQTT) Stats() MQTTStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	pub := make(map[string]uint64, len(n.published))
	for k, v := range n.published {
		pub[k] = v
	}
	return MQTTStats{Connected: n.connected, Published: pub, Errors: n.errors}
}

func (n *MQTT) publish(event string, data any) error {
	n.mu.Lock()
	ready := n.connected && n.client != nil
	n.mu.Unlock()
	if !ready {
		n.fail()
		return fmt.Errorf("notify: mqtt not connected")
	}

	payload, err := json.Marshal(Envelope{Event: event, Time: n.now().UTC(), Data: data})
	if err != nil {
		n.fail()
		return fmt.Errorf("notify: marshal %s: %w", event, err)
	}
	topic := n.cfg.TopicPrefix + "/" + event
	token := n.client.Publish(topic, n.cfg.QoS, false, payload)
	if !token.WaitTimeout(n.cfg.Timeout) {
		n.fail()
		return fmt.Errorf("notify: publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		n.fail()
		return fmt.Errorf("notify: publish %s: %w", topic, err)
	}

	n.mu.Lock()
	n.published[topic]++
	n.mu.Unlock()
	n.log.Debug("event published", zap.String("topic", topic), zap.Int("size", len(payload)))
	return nil
}

func (n *MQTT) setConnected(v bool) {
	n.mu.Lock()
	n.connected = v
	n.mu.Unlock()
}

func (n *MQTT) fail() {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
}

// Package notify publishes closed subtitle cues to an MQTT broker so that
// dashboards can follow an export or a live replay.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/fieldlog/trackexport/internal/download"
	"github.com/fieldlog/trackexport/internal/subtitle"
)

// DefaultTopicPrefix is used when Options.TopicPrefix is empty.
const DefaultTopicPrefix = "trackexport"

// Options configures the broker connection.
type Options struct {
	Broker         string // host:port or a full URL such as tcp://host:1883
	ClientID       string
	TopicPrefix    string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func (o *Options) defaults() {
	if o.TopicPrefix == "" {
		o.TopicPrefix = DefaultTopicPrefix
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 2 * time.Second
	}
}

// BrokerURL adds the tcp scheme to a bare host:port.
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Topic returns the cue topic of a session.
func Topic(prefix, sessionID string) string {
	return fmt.Sprintf("%s/%s/subtitle", strings.TrimSuffix(prefix, "/"), sessionID)
}

// CuePayload is the JSON body of one published cue.
type CuePayload struct {
	SessionID string  `json:"session_id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Line1     string  `json:"line1"`
	Line2     string  `json:"line2"`
}

// Stats counts publish outcomes.
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// MQTTSink is a download.Sink that publishes every segment. Publish
// failures are logged and counted but never stop the export.
type MQTTSink struct {
	download.NopSink

	client    mqtt.Client
	topic     string
	sessionID string
	opts      Options
	log       *zap.SugaredLogger

	mu        sync.Mutex
	published uint64
	errors    uint64
}

// Connect dials the broker with auto-reconnect enabled and returns a sink
// for sessionID.
func Connect(ctx context.Context, opts Options, sessionID string, log *zap.SugaredLogger) (*MQTTSink, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	opts.defaults()
	if opts.ClientID == "" {
		opts.ClientID = "trackexport-" + sessionID
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(BrokerURL(opts.Broker))
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)
	co.OnConnect = func(mqtt.Client) {
		log.Infow("mqtt connected", "broker", opts.Broker, "client_id", opts.ClientID)
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warnw("mqtt connection lost, reconnecting", "broker", opts.Broker, "error", err)
	}

	client := mqtt.NewClient(co)
	token := client.Connect()
	if err := wait(ctx, token, opts.ConnectTimeout); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect %s: %w", opts.Broker, err)
	}
	return NewMQTTSink(client, opts, sessionID, log), nil
}

// NewMQTTSink wraps an already connected client.
func NewMQTTSink(client mqtt.Client, opts Options, sessionID string, log *zap.SugaredLogger) *MQTTSink {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	opts.defaults()
	return &MQTTSink{
		client:    client,
		topic:     Topic(opts.TopicPrefix, sessionID),
		sessionID: sessionID,
		opts:      opts,
		log:       log,
	}
}

// wait blocks until the token completes, the timeout passes or ctx is done.
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Segment publishes seg. It only returns an error for unencodable input.
func (m *MQTTSink) Segment(seg subtitle.Segment) error {
	payload, err := json.Marshal(CuePayload{
		SessionID: m.sessionID,
		Start:     seg.Start,
		End:       seg.End,
		Line1:     seg.Line1,
		Line2:     seg.Line2,
	})
	if err != nil {
		return fmt.Errorf("encode cue: %w", err)
	}

	token := m.client.Publish(m.topic, m.opts.QoS, false, payload)
	if err := wait(context.Background(), token, m.opts.PublishTimeout); err != nil {
		m.mu.Lock()
		m.errors++
		m.mu.Unlock()
		m.log.Warnw("mqtt publish failed", "topic", m.topic, "start", seg.Start, "error", err)
		return nil
	}

	m.mu.Lock()
	m.published++
	m.mu.Unlock()
	m.log.Debugw("cue published", "topic", m.topic, "size", len(payload))
	return nil
}

// Topic returns the topic cues are published to.
func (m *MQTTSink) Topic() string { return m.topic }

// Stats returns publish counters.
func (m *MQTTSink) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Connected: m.client.IsConnected(),
		Published: m.published,
		Errors:    m.errors,
	}
}

// Close disconnects with a short grace period for in-flight messages.
func (m *MQTTSink) Close() error {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	return nil
}

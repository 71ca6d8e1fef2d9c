package floor

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// VerdictMessage is the retained payload published to <prefix>/verdict
type VerdictMessage struct {
	Verdict   VerdictKind `json:"verdict"`
	SameFloor bool        `json:"sameFloor"`
	Message   string      `json:"message"`
	Evidence  Verdict     `json:"evidence"`
	Pins      []MarkerID  `json:"pins"`
	Timestamp int64       `json:"timestamp"`
}

// PinsMessage is the retained payload published to <prefix>/pins
type PinsMessage struct {
	Pins      []Marker `json:"pins"`
	Timestamp int64    `json:"timestamp"`
}

// Publisher publishes verdicts and pin snapshots to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *VerdictMessage
	mu            sync.RWMutex
}

// ResolvePublishPrefix applies the MQTT_PUBLISH_PREFIX override and the default
// prefix, without a trailing slash
func ResolvePublishPrefix(prefix string) string {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}
	return strings.TrimSuffix(prefix, "/")
}

// NewPublisher creates a verdict publisher on the resolved prefix
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	return &Publisher{
		client:        client,
		publishPrefix: ResolvePublishPrefix(prefix),
		qos:           1,
		retain:        true,
	}
}

// VerdictTopic returns the topic verdicts are published to
func (p *Publisher) VerdictTopic() string {
	return p.publishPrefix + "/verdict"
}

// PinsTopic returns the topic pin snapshots are published to
func (p *Publisher) PinsTopic() string {
	return p.publishPrefix + "/pins"
}

// PublishEvaluation publishes the verdict and the pin snapshot of an evaluation
func (p *Publisher) PublishEvaluation(eval Evaluation) error {
	if err := p.PublishVerdict(eval); err != nil {
		return err
	}
	return p.PublishPins(eval.Pins)
}

// PublishVerdict publishes a single evaluation's verdict
func (p *Publisher) PublishVerdict(eval Evaluation) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	ids := make([]MarkerID, len(eval.Pins))
	for i, pin := range eval.Pins {
		ids[i] = pin.ID
	}
	ts := eval.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := &VerdictMessage{
		Verdict:   eval.Verdict.Kind,
		SameFloor: eval.Verdict.SameFloor(),
		Message:   eval.Verdict.Message(),
		Evidence:  eval.Verdict,
		Pins:      ids,
		Timestamp: ts.Unix(),
	}

	if err := p.publish(p.VerdictTopic(), msg); err != nil {
		log.Printf("Error publishing verdict: %v", err)
		return err
	}

	p.mu.Lock()
	p.last = msg
	p.mu.Unlock()

	log.Printf("Published verdict %s: %s", msg.Verdict, msg.Message)
	return nil
}

// PublishPins publishes the current pin snapshot
func (p *Publisher) PublishPins(pins []Marker) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	if pins == nil {
		pins = []Marker{}
	}
	msg := &PinsMessage{Pins: pins, Timestamp: time.Now().Unix()}
	if err := p.publish(p.PinsTopic(), msg); err != nil {
		log.Printf("Error publishing pins: %v", err)
		return err
	}
	return nil
}

// ClearVerdict clears the retained verdict, e.g. after the pins were reset
func (p *Publisher) ClearVerdict() error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	token := p.client.Publish(p.VerdictTopic(), p.qos, true, []byte{})
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", p.VerdictTopic(), token.Error())
	}

	p.mu.Lock()
	p.last = nil
	p.mu.Unlock()
	return nil
}

func (p *Publisher) publish(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// LastVerdict returns the last successfully published verdict
func (p *Publisher) LastVerdict() (*VerdictMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return nil, false
	}
	msg := *p.last
	return &msg, true
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

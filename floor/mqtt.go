package floor

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MessageHandlers receives decoded messages from the subscribed topics. Nil fields
// are skipped.
type MessageHandlers struct {
	OnSurfaces func(surfaces []Surface)
	OnRemove   func(ids []SurfaceID)
	OnPlace    func(req PlaceRequest)
	OnReset    func()
}

// MQTTClient manages the MQTT connection and subscriptions for perception updates
// and pin placements
type MQTTClient struct {
	client      mqtt.Client
	config      *Config
	handlers    MessageHandlers
	statusTopic string
	isConnected bool
	mu          sync.RWMutex
}

// Availability payloads retained on <prefix>/status
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// envOr returns the environment variable, then the configured value, then fallback
func envOr(key, configured, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if configured != "" {
		return configured
	}
	return fallback
}

// InitMQTT creates the MQTT client and starts connecting in the background.
// If neither MQTT_BROKER nor mqtt.broker is set, MQTT is disabled and this returns nil
func InitMQTT(config *Config, handlers MessageHandlers) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil {
		return nil, fmt.Errorf("MQTT enabled but no configuration provided")
	}

	client := &MQTTClient{
		config:      config,
		handlers:    handlers,
		statusTopic: ResolvePublishPrefix(config.MQTT.PublishPrefix) + "/status",
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(envOr("MQTT_CLIENT_ID", config.MQTT.ClientID, "pinfloor"))
	if username := envOr("MQTT_USERNAME", config.MQTT.Username, ""); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(envOr("MQTT_PASSWORD", config.MQTT.Password, ""))
	}
	opts.SetWill(client.statusTopic, StatusOffline, 1, true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	// Pin placements must be evaluated in arrival order.
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	return client, nil
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to every input topic once the connection is established
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("MQTT connected, subscribing to input topics...")
	c.setConnected(true)
	c.publishStatus(client, StatusOnline)

	subscriptions := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{c.config.Topics.Surfaces, c.handleSurfaces},
		{c.config.Topics.Remove, c.handleRemove},
		{c.config.Topics.Place, c.handlePlace},
		{c.config.Topics.Reset, c.handleReset},
	}

	for _, sub := range subscriptions {
		if sub.topic == "" {
			continue
		}
		token := client.Subscribe(sub.topic, 1, sub.handler)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("Error subscribing to %s: %v", sub.topic, token.Error())
		} else {
			log.Printf("Successfully subscribed to %s", sub.topic)
		}
	}
}

// publishStatus retains the service availability
func (c *MQTTClient) publishStatus(client mqtt.Client, status string) {
	if c.statusTopic == "" {
		return
	}
	token := client.Publish(c.statusTopic, 1, true, status)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("Error publishing status to %s: %v", c.statusTopic, token.Error())
	}
}

// StatusTopic returns the availability topic
func (c *MQTTClient) StatusTopic() string {
	return c.statusTopic
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// onReconnecting is called when the client attempts to reconnect
func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

func (c *MQTTClient) handleSurfaces(client mqtt.Client, msg mqtt.Message) {
	surfaces, err := DecodeSurfaces(msg.Payload())
	if err != nil {
		log.Printf("Error decoding surfaces (topic: %s): %v", msg.Topic(), err)
		return
	}
	log.Printf("Received %d surface update(s)", len(surfaces))
	if c.handlers.OnSurfaces != nil {
		c.handlers.OnSurfaces(surfaces)
	}
}

func (c *MQTTClient) handleRemove(client mqtt.Client, msg mqtt.Message) {
	ids, err := DecodeSurfaceIDs(msg.Payload())
	if err != nil {
		log.Printf("Error decoding surface removal (topic: %s): %v", msg.Topic(), err)
		return
	}
	if c.handlers.OnRemove != nil {
		c.handlers.OnRemove(ids)
	}
}

func (c *MQTTClient) handlePlace(client mqtt.Client, msg mqtt.Message) {
	req, err := DecodePlaceRequest(msg.Payload())
	if err != nil {
		log.Printf("Error decoding pin placement (topic: %s): %v", msg.Topic(), err)
		return
	}
	if c.handlers.OnPlace != nil {
		c.handlers.OnPlace(req)
	}
}

func (c *MQTTClient) handleReset(client mqtt.Client, msg mqtt.Message) {
	log.Printf("Received pin reset (topic: %s)", msg.Topic())
	if c.handlers.OnReset != nil {
		c.handlers.OnReset()
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// setConnected updates the connection status
func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.publishStatus(c.client, StatusOffline)
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client
// This is used for testing with mock clients
func newMQTTClientWithMock(client mqtt.Client, config *Config, handlers MessageHandlers) *MQTTClient {
	return &MQTTClient{
		client:      client,
		config:      config,
		handlers:    handlers,
		statusTopic: ResolvePublishPrefix(config.MQTT.PublishPrefix) + "/status",
	}
}

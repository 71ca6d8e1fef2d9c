package floor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")

	client, err := InitMQTT(DefaultConfig(), MessageHandlers{})
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitMQTT_NoConfig(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://localhost:1883")

	_, err := InitMQTT(nil, MessageHandlers{})
	assert.Error(t, err)
}

func TestMQTTClient_IsConnected(t *testing.T) {
	client := &MQTTClient{}
	assert.False(t, client.IsConnected(), "New client should not be connected")

	client.setConnected(true)
	assert.True(t, client.IsConnected(), "Client should be connected after setConnected(true)")

	client.setConnected(false)
	assert.False(t, client.IsConnected(), "Client should not be connected after setConnected(false)")
}

// connectedMock wires an MQTTClient to a MockClient and runs the connect handler
func connectedMock(t *testing.T, handlers MessageHandlers) (*MQTTClient, *MockClient) {
	t.Helper()
	mock := NewMockClient()
	client := newMQTTClientWithMock(mock, DefaultConfig(), handlers)
	mock.SetOnConnect(client.onConnect)
	require.NoError(t, mock.Connect().Error())
	return client, mock
}

func TestMQTTClient_SubscribesOnConnect(t *testing.T) {
	client, mock := connectedMock(t, MessageHandlers{})

	assert.True(t, client.IsConnected())
	for _, topic := range DefaultConfig().SubscribedTopics() {
		assert.True(t, mock.Subscribed(topic), "not subscribed to %s", topic)
	}
}

func TestMQTTClient_SubscribeErrorIsLogged(t *testing.T) {
	mock := NewMockClient()
	mock.SetSubscribeError(errors.New("denied"))
	client := newMQTTClientWithMock(mock, DefaultConfig(), MessageHandlers{})
	mock.SetOnConnect(client.onConnect)

	assert.NotPanics(t, func() { mock.Connect() })
	assert.False(t, mock.Subscribed("pinfloor/surfaces"))
}

func TestMQTTClient_RoutesMessages(t *testing.T) {
	var (
		surfaces []Surface
		removed  []SurfaceID
		placed   []PlaceRequest
		resets   int
	)
	_, mock := connectedMock(t, MessageHandlers{
		OnSurfaces: func(s []Surface) { surfaces = append(surfaces, s...) },
		OnRemove:   func(ids []SurfaceID) { removed = append(removed, ids...) },
		OnPlace:    func(r PlaceRequest) { placed = append(placed, r) },
		OnReset:    func() { resets++ },
	})

	assert.True(t, mock.Deliver("pinfloor/surfaces", []byte(singleSurfaceJSON)))
	assert.True(t, mock.Deliver("pinfloor/surfaces/remove", []byte(`["kitchen"]`)))
	assert.True(t, mock.Deliver("pinfloor/pins/place", []byte(`{"x": 1, "y": 1, "z": 0}`)))
	assert.True(t, mock.Deliver("pinfloor/pins/reset", nil))

	require.Len(t, surfaces, 1)
	assert.Equal(t, SurfaceID("kitchen"), surfaces[0].ID)
	assert.Equal(t, []SurfaceID{"kitchen"}, removed)
	require.Len(t, placed, 1)
	assert.Equal(t, vec(1, 1, 0), placed[0].Position())
	assert.Equal(t, 1, resets)
}

func TestMQTTClient_DropsMalformedPayloads(t *testing.T) {
	called := false
	_, mock := connectedMock(t, MessageHandlers{
		OnSurfaces: func([]Surface) { called = true },
		OnPlace:    func(PlaceRequest) { called = true },
	})

	mock.Deliver("pinfloor/surfaces", []byte("not json"))
	mock.Deliver("pinfloor/surfaces", []byte(`{"id": "f", "alignment": "horizontal"}`))
	mock.Deliver("pinfloor/pins/place", []byte("{"))

	assert.False(t, called)
}

func TestMQTTClient_NilHandlers(t *testing.T) {
	_, mock := connectedMock(t, MessageHandlers{})

	assert.NotPanics(t, func() {
		mock.Deliver("pinfloor/surfaces", []byte(singleSurfaceJSON))
		mock.Deliver("pinfloor/pins/reset", nil)
	})
}

func TestMQTTClient_Disconnect(t *testing.T) {
	client, mock := connectedMock(t, MessageHandlers{})

	client.Disconnect()

	assert.False(t, client.IsConnected())
	assert.False(t, mock.IsConnected())
	assert.Equal(t, mock, client.GetClient())
}

func TestMockClient_RetainedPayloads(t *testing.T) {
	mock := NewMockClient()
	assert.Error(t, mock.Publish("t", 1, true, "x").Error(), "publishing while disconnected fails")

	mock.SetConnected(true)
	mock.Publish("t", 1, true, []byte("one"))
	mock.Publish("t", 1, false, "two")

	payload, ok := mock.Retained("t")
	require.True(t, ok)
	assert.Equal(t, "one", string(payload))
	assert.Len(t, mock.Published(), 2)

	mock.Publish("t", 1, true, []byte{})
	_, ok = mock.Retained("t")
	assert.False(t, ok, "an empty retained message clears the topic")
}

func TestMQTTClient_Availability(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	client, mock := connectedMock(t, MessageHandlers{})
	assert.Equal(t, "pinfloor/status", client.StatusTopic())

	status, ok := mock.Retained("pinfloor/status")
	require.True(t, ok)
	assert.Equal(t, StatusOnline, string(status))

	client.Disconnect()
	status, _ = mock.Retained("pinfloor/status")
	assert.Equal(t, StatusOffline, string(status))
}

func TestEnvOr(t *testing.T) {
	t.Setenv("PINFLOOR_TEST_VALUE", "")
	assert.Equal(t, "fallback", envOr("PINFLOOR_TEST_VALUE", "", "fallback"))
	assert.Equal(t, "configured", envOr("PINFLOOR_TEST_VALUE", "configured", "fallback"))

	t.Setenv("PINFLOOR_TEST_VALUE", "env")
	assert.Equal(t, "env", envOr("PINFLOOR_TEST_VALUE", "configured", "fallback"))
}

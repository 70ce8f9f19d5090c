package feed

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/afroash/smoker-monitor/internal/models"
)

// startBroker spins up an in-process MQTT broker on a free local port
func startBroker(t *testing.T) string {
	t.Helper()
	addr, _ := newBroker(t)
	return addr
}

// newBroker starts a broker and returns its address and an idempotent
// shutdown func, also run at cleanup
func newBroker(t *testing.T) (string, func()) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	broker := mochi.New(nil)
	require.NoError(t, broker.AddHook(&auth.AllowHook{}, nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "test",
		Address: addr,
	})))
	require.NoError(t, broker.Serve())

	var once sync.Once
	shutdown := func() { once.Do(func() { broker.Close() }) }
	t.Cleanup(shutdown)

	return addr, shutdown
}

func TestTopicFor(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "Smoker"},
		{"smoker", "smoker/Smoker"},
		{"/smoker/", "smoker/Smoker"},
		{"bbq/temps", "bbq/temps/Smoker"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			got := TopicFor(tt.prefix, models.StationSmoker)
			require.Equal(t, tt.want, got)
			require.Equal(t, "Smoker", ChannelFromTopic(tt.prefix, got))
		})
	}
}

func TestConnectionStateString(t *testing.T) {
	require.Equal(t, "disconnected", StateDisconnected.String())
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "connected", StateConnected.String())
	require.Equal(t, "unknown", ConnectionState(99).String())
}

func TestPublishBeforeConnect(t *testing.T) {
	pub := NewPublisher(BrokerConfig{Address: "127.0.0.1:1"}, zerolog.Nop())
	err := pub.Publish(context.Background(), models.StationSmoker, []byte("x"))
	require.Error(t, err)
	require.False(t, pub.IsConnected())
	require.NoError(t, pub.Close())
}

func TestConnectFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	sub := NewSubscriber(BrokerConfig{Address: addr, ConnectTimeout: time.Second}, 10, zerolog.Nop())
	err = sub.Connect(context.Background())
	require.Error(t, err)
	require.Equal(t, StateDisconnected, sub.State())
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	addr := startBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := BrokerConfig{Address: addr, TopicPrefix: "smoker", QoS: 1}
	stations := []models.StationID{models.StationSmoker, models.StationRoast, models.StationRibs}

	subCfg := cfg
	subCfg.ClientID = "consumer-test"
	sub := NewSubscriber(subCfg, 10, zerolog.Nop())
	require.NoError(t, sub.Connect(ctx))
	defer sub.Close()
	require.True(t, sub.IsConnected())
	require.NoError(t, sub.Subscribe(ctx, stations))

	pubCfg := cfg
	pubCfg.ClientID = "producer-test"
	pub := NewPublisher(pubCfg, zerolog.Nop())
	require.NoError(t, pub.Connect(ctx))
	defer pub.Close()

	ts := time.Date(2023, 5, 14, 9, 30, 0, 0, time.UTC)
	want := []models.ParsedMessage{
		{StationID: models.StationSmoker, Timestamp: ts, TemperatureF: 225},
		{StationID: models.StationSmoker, Timestamp: ts.Add(time.Minute), TemperatureF: 224.5},
		{StationID: models.StationSmoker, Timestamp: ts.Add(2 * time.Minute), TemperatureF: 221},
	}
	for _, m := range want {
		payload := models.FormatMessage(m.StationID, m.Timestamp, m.TemperatureF)
		require.NoError(t, pub.Publish(ctx, m.StationID, []byte(payload)))
	}

	for i, w := range want {
		select {
		case msg := <-sub.Messages():
			require.Equal(t, "Smoker", msg.Channel)
			parsed, err := models.ParseMessage(msg.Payload)
			require.NoError(t, err, "message %d", i)
			require.Equal(t, w.StationID, parsed.StationID)
			require.True(t, w.Timestamp.Equal(parsed.Timestamp))
			require.Equal(t, w.TemperatureF, parsed.TemperatureF)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestReplayerOverBroker(t *testing.T) {
	addr := startBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stations := []models.StationID{models.StationSmoker, models.StationRoast}
	sub := NewSubscriber(BrokerConfig{Address: addr, ClientID: "sub", QoS: 1}, 10, zerolog.Nop())
	require.NoError(t, sub.Connect(ctx))
	defer sub.Close()
	require.NoError(t, sub.Subscribe(ctx, stations))

	pub := NewPublisher(BrokerConfig{Address: addr, ClientID: "pub", QoS: 1}, zerolog.Nop())
	require.NoError(t, pub.Connect(ctx))
	defer pub.Close()

	ts := time.Date(2023, 5, 14, 9, 30, 0, 0, time.UTC)
	rows := []Row{
		{Line: 2, Timestamp: ts, Values: map[models.StationID]float64{models.StationSmoker: 225, models.StationRoast: 40}},
	}
	replayer := NewReplayer(rows, stations, pub, 0, zerolog.Nop())
	require.NoError(t, replayer.Run(ctx))
	require.Equal(t, 2, replayer.Sent())

	got := make(map[string]bool)
	for len(got) < 2 {
		select {
		case msg := <-sub.Messages():
			got[msg.Channel] = true
		case <-ctx.Done():
			t.Fatalf("timed out, received %v", got)
		}
	}
	require.True(t, got["Smoker"])
	require.True(t, got["Roast"])
}

func TestSubscriberResumesSession(t *testing.T) {
	addr := startBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stations := []models.StationID{models.StationSmoker}
	subCfg := BrokerConfig{
		Address:       addr,
		ClientID:      "smoker-consumer",
		TopicPrefix:   "smoker",
		QoS:           1,
		SessionExpiry: time.Minute,
	}

	first := NewSubscriber(subCfg, 10, zerolog.Nop())
	require.NoError(t, first.Connect(ctx))
	require.NoError(t, first.Subscribe(ctx, stations))
	require.NoError(t, first.Close())

	pub := NewPublisher(BrokerConfig{Address: addr, ClientID: "producer", TopicPrefix: "smoker", QoS: 1}, zerolog.Nop())
	require.NoError(t, pub.Connect(ctx))
	defer pub.Close()

	ts := time.Date(2023, 5, 14, 9, 30, 0, 0, time.UTC)
	payload := models.FormatMessage(models.StationSmoker, ts, 218)
	require.NoError(t, pub.Publish(ctx, models.StationSmoker, []byte(payload)))

	// Same client id: the broker hands back the reading queued while away
	second := NewSubscriber(subCfg, 10, zerolog.Nop())
	require.NoError(t, second.Connect(ctx))
	defer second.Close()
	require.NoError(t, second.Subscribe(ctx, stations))

	select {
	case msg := <-second.Messages():
		require.Equal(t, "Smoker", msg.Channel)
		require.Equal(t, payload, string(msg.Payload))
	case <-ctx.Done():
		t.Fatal("reading published while the subscriber was away was not delivered")
	}
}

func TestSubscriberDoneOnBrokerShutdown(t *testing.T) {
	addr, shutdown := newBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub := NewSubscriber(BrokerConfig{Address: addr, ClientID: "consumer", QoS: 1}, 10, zerolog.Nop())
	require.NoError(t, sub.Connect(ctx))
	defer sub.Close()
	require.NoError(t, sub.Subscribe(ctx, []models.StationID{models.StationSmoker}))

	shutdown()

	select {
	case err, ok := <-sub.Done():
		require.True(t, ok, "Done closed without an error")
		require.Error(t, err)
	case <-ctx.Done():
		t.Fatal("Done did not report the lost connection")
	}
	require.False(t, sub.IsConnected())
}

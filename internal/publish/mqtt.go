package publish

import (
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/cwsl/vtxcore/internal/candidate"
)

// compressThresholdBytes is the payload size above which MQTTPublisher
// zstd-compresses before publishing (spec §4.8 supplement: large raster
// payloads benefit, small candidate snapshots don't).
const compressThresholdBytes = 4096

// MQTTConfig configures the broker connection (spec §6).
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
}

// MQTTPublisher publishes frames and candidate snapshots to an MQTT
// broker at QoS 0, fire-and-forget: it never waits on a publish token's
// completion, matching mqtt_publisher.go's PublishDigitalDecode path
// (spec §4.8, §7 taxonomy #5 — publisher failures are logged, not fatal,
// except at bind/connect time).
type MQTTPublisher struct {
	client    mqtt.Client
	topic     string
	encoder   *zstd.Encoder
}

// NewMQTTPublisher connects to cfg.Broker and returns a ready publisher.
// A connect failure is the one case this package treats as fatal to the
// caller, since nothing downstream can recover without a broker.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "vtxcore_" + uuid.NewString()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Println("mqtt: connected to broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("mqtt: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect to broker: %w", token.Error())
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("mqtt: create zstd encoder: %w", err)
	}

	return &MQTTPublisher{client: client, topic: cfg.Topic, encoder: enc}, nil
}

// PublishFrame publishes meta to "<topic>/frame/meta" and pixels to
// "<topic>/frame/data" as two distinct QoS 0 messages (spec §6, §4.8:
// frame 2 is metadata JSON, frame 3 is raw pixel bytes). The pixel part
// is the one large enough to benefit from zstd, so compression applies
// there, not to the now-small metadata JSON; subscribers tell the
// encoding apart by topic ("<topic>/frame/data.zst") rather than
// sniffing bytes.
func (m *MQTTPublisher) PublishFrame(meta FrameMeta, pixels []byte) error {
	if !m.client.IsConnected() {
		return nil
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		log.Printf("mqtt: marshal frame metadata: %v", err)
		return nil
	}
	m.client.Publish(m.topic+"/frame/meta", 0, false, metaData)

	dataTopic := m.topic + "/frame/data"
	data := pixels
	if len(data) > compressThresholdBytes {
		data = m.encoder.EncodeAll(data, nil)
		dataTopic += ".zst"
	}
	m.client.Publish(dataTopic, 0, false, data)
	return nil
}

// PublishSnapshot marshals snapshot and publishes it to
// "<topic>/snapshot" at QoS 0, fire-and-forget.
func (m *MQTTPublisher) PublishSnapshot(snapshot []candidate.Candidate) {
	if !m.client.IsConnected() {
		return
	}
	data, err := marshalSnapshot(snapshot)
	if err != nil {
		log.Printf("mqtt: marshal snapshot payload: %v", err)
		return
	}
	m.client.Publish(m.topic+"/snapshot", 0, false, data)
}

// Disconnect gracefully closes the broker connection.
func (m *MQTTPublisher) Disconnect() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}

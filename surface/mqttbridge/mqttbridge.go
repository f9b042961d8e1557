// Package mqttbridge lets a surface controller drive the loader's
// wire protocol over an MQTT control plane instead of talking to the
// bus transport directly — useful when the loader sits behind a
// gateway that only exposes MQTT. It follows the teacher's mqtt.go
// connect/subscribe/publish/wait-for-response shape, adapted from the
// TinyGo lneto/xnet stack to a plain host net.Conn.
package mqttbridge

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
)

const (
	// DefaultTimeout bounds dial, connect, and subscribe handshakes.
	DefaultTimeout = 10 * time.Second
	userBufSize    = 512
)

var ErrNoResponse = errors.New("mqttbridge: no response before timeout")
var ErrConnectTimeout = errors.New("mqttbridge: connect timeout")

// Bridge is one MQTT session relaying request/response frames between
// a request topic (commands sent to the loader's surface agent) and a
// response topic (replies read back from it).
type Bridge struct {
	conn          net.Conn
	client        *mqtt.Client
	requestTopic  []byte
	responseTopic []byte
	userBuf       [userBufSize]byte
	pending       chan []byte
	logger        *slog.Logger
}

// Dial connects to the broker at addr, authenticates as clientID, and
// subscribes to responseTopic. Commands are later published to
// requestTopic via SendCommand.
func Dial(addr, clientID, requestTopic, responseTopic string, logger *slog.Logger) (*Bridge, error) {
	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		conn:          conn,
		requestTopic:  []byte(requestTopic),
		responseTopic: []byte(responseTopic),
		pending:       make(chan []byte, 1),
		logger:        logger,
	}

	cfg := mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: b.userBuf[:]},
		OnPub:   b.onPublish,
	}
	b.client = mqtt.NewClient(cfg)

	var varconn mqtt.VariablesConnect
	id := make([]byte, 0, len(clientID)+5)
	id = append(id, clientID...)
	varconn.SetDefaultMQTT(id)

	conn.SetDeadline(time.Now().Add(DefaultTimeout))
	if err := b.client.StartConnect(conn, &varconn); err != nil {
		conn.Close()
		return nil, err
	}
	for i := 0; i < 50 && !b.client.IsConnected(); i++ {
		time.Sleep(100 * time.Millisecond)
		if err := b.client.HandleNext(); err != nil && b.logger != nil {
			b.logger.Warn("mqttbridge: handle-next during connect", slog.String("err", err.Error()))
		}
	}
	if !b.client.IsConnected() {
		conn.Close()
		return nil, ErrConnectTimeout
	}

	varSub := mqtt.VariablesSubscribe{
		TopicFilters:     []mqtt.SubscribeRequest{{TopicFilter: b.responseTopic, QoS: mqtt.QoS0}},
		PacketIdentifier: uint16(rand.Uint32()),
	}
	conn.SetDeadline(time.Now().Add(DefaultTimeout))
	if err := b.client.StartSubscribe(varSub); err != nil {
		conn.Close()
		return nil, err
	}
	for i := 0; i < 20; i++ {
		time.Sleep(100 * time.Millisecond)
		b.client.HandleNext()
	}

	return b, nil
}

// onPublish is the MQTT client's OnPub callback; it only cares about
// responseTopic and hands the payload off to SendCommand's waiter.
func (b *Bridge) onPublish(pubHead mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
	if !bytes.Equal(varPub.TopicName, b.responseTopic) {
		return nil
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	select {
	case b.pending <- payload:
	default:
	}
	return nil
}

// SendCommand publishes payload to the request topic and blocks for a
// matching reply on the response topic, or ErrNoResponse after
// timeout.
func (b *Bridge) SendCommand(payload []byte, timeout time.Duration) ([]byte, error) {
	pubFlags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	if err != nil {
		return nil, err
	}
	pubVar := mqtt.VariablesPublish{
		TopicName:        b.requestTopic,
		PacketIdentifier: uint16(rand.Uint32()),
	}
	b.conn.SetDeadline(time.Now().Add(timeout))
	if err := b.client.PublishPayload(pubFlags, pubVar, payload); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		b.conn.SetDeadline(time.Now().Add(200 * time.Millisecond))
		b.client.HandleNext()
		select {
		case resp := <-b.pending:
			return resp, nil
		default:
		}
	}
	return nil, ErrNoResponse
}

// Close disconnects cleanly and releases the underlying connection.
func (b *Bridge) Close() error {
	b.client.Disconnect(errors.New("mqttbridge: session closed"))
	return b.conn.Close()
}

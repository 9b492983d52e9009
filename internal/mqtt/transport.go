package mqtt

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"meshgate/internal/resource"
	"meshgate/internal/rules"
	"meshgate/internal/utils"
	"meshgate/internal/zcl"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Client is the part of a paho client the transport uses
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// AttributeWriter receives attribute values reported by devices
type AttributeWriter interface {
	UpdateAttribute(address string, v resource.Value) (bool, error)
}

// IndicationHandler receives ZCL frames reported by devices
type IndicationHandler interface {
	HandleIndication(ctx context.Context, ind zcl.Indication) error
}

// Transport connects the gateway to the device network over MQTT.
//
// Inbound topics:
//
//	<prefix>/resources/<category>/<id>/<suffix...>   JSON value
//	<prefix>/zcl/<ieee>/<endpoint>/<cluster>          raw ZCL frame
//
// Outbound topics: <prefix>/commands, <prefix>/bindings, <prefix>/aps.
type Transport struct {
	client  Client
	prefix  string
	qos     byte
	timeout time.Duration
	attrs   AttributeWriter
	zcl     map[uint16]IndicationHandler
	log     *zerolog.Logger
}

// NewTransport creates a transport publishing under prefix
func NewTransport(client Client, prefix string, qos byte, timeout time.Duration) *Transport {
	if prefix == "" {
		prefix = "meshgate"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Transport{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     qos,
		timeout: timeout,
		zcl:     make(map[uint16]IndicationHandler),
		log:     utils.Logger("mqtt"),
	}
}

// SetAttributeWriter sets where reported attribute values go
func (t *Transport) SetAttributeWriter(w AttributeWriter) { t.attrs = w }

// HandleCluster routes frames of a cluster to h
func (t *Transport) HandleCluster(cluster uint16, h IndicationHandler) { t.zcl[cluster] = h }

// Start subscribes to the inbound topics
func (t *Transport) Start() error {
	subs := map[string]mqtt.MessageHandler{
		t.prefix + "/resources/#": func(_ mqtt.Client, msg mqtt.Message) {
			if err := t.handleResourceMessage(msg.Topic(), msg.Payload()); err != nil {
				t.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("dropping resource message")
			}
		},
		t.prefix + "/zcl/#": func(_ mqtt.Client, msg mqtt.Message) {
			if err := t.handleZCLMessage(msg.Topic(), msg.Payload()); err != nil {
				t.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("dropping zcl message")
			}
		},
	}
	for topic, cb := range subs {
		t.log.Info().Str("topic", topic).Msg("subscribing")
		if err := t.wait(context.Background(), t.client.Subscribe(topic, t.qos, cb)); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

// Stop unsubscribes from the inbound topics
func (t *Transport) Stop() {
	if err := t.wait(context.Background(), t.client.Unsubscribe(t.prefix+"/resources/#", t.prefix+"/zcl/#")); err != nil {
		t.log.Warn().Err(err).Msg("unsubscribe failed")
	}
}

func (t *Transport) handleResourceMessage(topic string, payload []byte) error {
	rest, ok := strings.CutPrefix(topic, t.prefix+"/resources/")
	if !ok {
		return fmt.Errorf("unexpected topic")
	}
	if t.attrs == nil {
		return nil
	}
	var v resource.Value
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	address := "/" + rest
	changed, err := t.attrs.UpdateAttribute(address, v)
	if err != nil {
		return err
	}
	t.log.Debug().Str("address", address).Bool("changed", changed).Msg("attribute reported")
	return nil
}

func (t *Transport) handleZCLMessage(topic string, payload []byte) error {
	rest, ok := strings.CutPrefix(topic, t.prefix+"/zcl/")
	if !ok {
		return fmt.Errorf("unexpected topic")
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return fmt.Errorf("expected <ieee>/<endpoint>/<cluster>")
	}
	ieee, err := zcl.ParseIEEE(parts[0])
	if err != nil {
		return fmt.Errorf("ieee: %w", err)
	}
	ep, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	cluster, err := strconv.ParseUint(strings.TrimPrefix(parts[2], "0x"), 16, 16)
	if err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	h, ok := t.zcl[uint16(cluster)]
	if !ok {
		return nil
	}
	frame, err := zcl.ParseFrame(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	return h.HandleIndication(ctx, zcl.Indication{
		SrcIEEE:     ieee,
		SrcEndpoint: uint8(ep),
		ProfileID:   zcl.ProfileHomeAutomation,
		ClusterID:   uint16(cluster),
		Frame:       frame,
	})
}

type commandMessage struct {
	Address string          `json:"address"`
	Method  string          `json:"method"`
	Body    json.RawMessage `json:"body"`
}

// SendCommand publishes a command for the device network
func (t *Transport) SendCommand(ctx context.Context, address, method, body string) error {
	msg := commandMessage{Address: address, Method: method, Body: json.RawMessage(body)}
	if body == "" || !json.Valid(msg.Body) {
		msg.Body = json.RawMessage("{}")
	}
	return t.publishJSON(ctx, t.prefix+"/commands", msg)
}

// SendBindingRequest publishes a binding add or remove request
func (t *Transport) SendBindingRequest(ctx context.Context, task rules.BindingTask) error {
	return t.publishJSON(ctx, t.prefix+"/bindings", task)
}

// SendFrame publishes an APS data request
func (t *Transport) SendFrame(ctx context.Context, req zcl.ApsRequest) error {
	return t.publishJSON(ctx, t.prefix+"/aps", struct {
		zcl.ApsRequest
		ASDU string `json:"asdu"`
	}{req, hex.EncodeToString(req.ASDU)})
}

func (t *Transport) publishJSON(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := t.wait(ctx, t.client.Publish(topic, t.qos, false, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	t.log.Debug().Str("topic", topic).RawJSON("payload", payload).Msg("published")
	return nil
}

func (t *Transport) wait(ctx context.Context, token mqtt.Token) error {
	timeout := t.timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	if !token.WaitTimeout(timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meshgate/internal/resource"
	"meshgate/internal/rules"
	"meshgate/internal/zcl"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err     error
	pending bool
}

func (t *fakeToken) Wait() bool                     { return !t.pending }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.pending {
		close(ch)
	}
	return ch
}

type published struct {
	topic   string
	payload string
}

type fakeClient struct {
	mu        sync.Mutex
	published []published
	subs      map[string]mqtt.MessageHandler
	token     *fakeToken
}

func newFakeClient() *fakeClient {
	return &fakeClient{subs: map[string]mqtt.MessageHandler{}, token: &fakeToken{}}
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, string(payload.([]byte))})
	return c.token
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[topic] = cb
	return c.token
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.subs, t)
	}
	return c.token
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func (c *fakeClient) deliver(sub, topic string, payload []byte) {
	c.mu.Lock()
	cb := c.subs[sub]
	c.mu.Unlock()
	cb(nil, fakeMessage{topic: topic, payload: payload})
}

type storeWriter struct{ store *resource.Store }

func (w storeWriter) UpdateAttribute(address string, v resource.Value) (bool, error) {
	return w.store.Set(address, v)
}

type indications struct{ got []zcl.Indication }

func (i *indications) HandleIndication(_ context.Context, ind zcl.Indication) error {
	i.got = append(i.got, ind)
	return nil
}

func TestInboundResourceMessages(t *testing.T) {
	c := newFakeClient()
	tr := NewTransport(c, "", 1, time.Second)
	store := resource.NewStore(resource.NewRegistry())
	tr.SetAttributeWriter(storeWriter{store})
	require.NoError(t, tr.Start())
	require.Len(t, c.subs, 2)

	c.deliver("meshgate/resources/#", "meshgate/resources/sensors/1/state/buttonevent", []byte("1002"))
	v, ok := store.Current("/sensors/1/state/buttonevent")
	require.True(t, ok)
	assert.Equal(t, int64(1002), v.Int())

	assert.NoError(t, tr.handleResourceMessage("meshgate/resources/config/localtime", []byte(`"T10:00:00"`)))
	assert.Error(t, tr.handleResourceMessage("meshgate/resources/sensors/1/state/bogus", []byte("1")))
	assert.Error(t, tr.handleResourceMessage("meshgate/resources/sensors/1/state/presence", []byte("{")))

	tr.Stop()
	assert.Empty(t, c.subs)
}

func TestInboundZCLMessages(t *testing.T) {
	c := newFakeClient()
	tr := NewTransport(c, "gw", 0, time.Second)
	h := &indications{}
	tr.HandleCluster(zcl.ClusterIASZone, h)

	err := tr.handleZCLMessage("gw/zcl/0x00158d0001a2b3c4/1/0500", []byte{0x19, 0x01, 0x00, 0x01, 0x00, 0x00, 0x05, 0x00, 0x00})
	require.NoError(t, err)
	require.Len(t, h.got, 1)
	assert.Equal(t, uint64(0x00158d0001a2b3c4), h.got[0].SrcIEEE)
	assert.Equal(t, uint8(1), h.got[0].SrcEndpoint)
	assert.Equal(t, zcl.ClusterIASZone, h.got[0].ClusterID)
	assert.Equal(t, uint8(0x01), h.got[0].Frame.SequenceNumber)

	require.NoError(t, tr.handleZCLMessage("gw/zcl/0x00158d0001a2b3c4/1/0006", []byte{0x18, 0x01, 0x0a}))
	assert.Len(t, h.got, 1)

	assert.Error(t, tr.handleZCLMessage("gw/zcl/0x00158d0001a2b3c4/1", nil))
	assert.ErrorIs(t, tr.handleZCLMessage("gw/zcl/0x00158d0001a2b3c4/1/0500", []byte{0x19}), zcl.ErrShortFrame)
}

func TestOutbound(t *testing.T) {
	c := newFakeClient()
	tr := NewTransport(c, "meshgate/", 1, time.Second)
	ctx := context.Background()

	require.NoError(t, tr.SendCommand(ctx, "/groups/1/action", "PUT", `{"on":true}`))
	require.NoError(t, tr.SendCommand(ctx, "/lights/1/state", "DELETE", ""))
	require.NoError(t, tr.SendBindingRequest(ctx, rules.BindingTask{
		Action:  rules.BindingAdd,
		Binding: rules.Binding{SourceID: "5", Cluster: rules.ClusterOnOff, DestinationType: rules.DestinationGroup, DestinationID: "1"},
	}))
	require.NoError(t, tr.SendFrame(ctx, zcl.ApsRequest{DstIEEE: "0x01", DstEndpoint: 1, SrcEndpoint: 1, ProfileID: 0x0104, ClusterID: 0x0500, ASDU: []byte{0x11, 0x33, 0x00, 0x00, 0x64}}))

	require.Len(t, c.published, 4)
	assert.Equal(t, "meshgate/commands", c.published[0].topic)
	assert.JSONEq(t, `{"address":"/groups/1/action","method":"PUT","body":{"on":true}}`, c.published[0].payload)
	assert.JSONEq(t, `{"address":"/lights/1/state","method":"DELETE","body":{}}`, c.published[1].payload)
	assert.Equal(t, "meshgate/bindings", c.published[2].topic)
	assert.JSONEq(t, `{"action":"add","binding":{"source":"5","cluster":6,"type":"group","destination":"1"}}`, c.published[2].payload)
	assert.Equal(t, "meshgate/aps", c.published[3].topic)
	assert.JSONEq(t, `{"dst_ieee":"0x01","dst_endpoint":1,"src_endpoint":1,"profile":260,"cluster":1280,"asdu":"1133000064"}`, c.published[3].payload)
}

func TestPublishErrors(t *testing.T) {
	c := newFakeClient()
	tr := NewTransport(c, "", 1, time.Second)

	c.token = &fakeToken{pending: true}
	assert.ErrorIs(t, tr.SendCommand(context.Background(), "/lights/1/state", "PUT", `{}`), ErrPublishTimeout)

	broker := errors.New("not connected")
	c.token = &fakeToken{err: broker}
	assert.ErrorIs(t, tr.SendCommand(context.Background(), "/lights/1/state", "PUT", `{}`), broker)
}

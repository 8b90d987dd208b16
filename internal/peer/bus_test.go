package peer

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chase3718/notelight/internal/notes"
)

// loopbackBroker speaks just enough MQTT 3.1.1 for one client: it acks the
// connect, subscriptions and QoS 1 publishes, and lets the test push
// messages down the connection in a fixed order.
type loopbackBroker struct {
	ln    net.Listener
	ready chan struct{} // closed once the client announced itself

	mu   sync.Mutex
	conn net.Conn
}

func startLoopbackBroker(t *testing.T) *loopbackBroker {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	b := &loopbackBroker{ln: ln, ready: make(chan struct{})}
	t.Cleanup(func() { _ = ln.Close() })
	go b.serve()
	return b
}

func (b *loopbackBroker) port() int {
	return b.ln.Addr().(*net.TCPAddr).Port
}

func (b *loopbackBroker) write(p packets.ControlPacket) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return p.Write(b.conn)
}

func (b *loopbackBroker) serve() {
	conn, err := b.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	var once sync.Once
	for {
		cp, err := packets.ReadPacket(conn)
		if err != nil {
			return
		}
		switch p := cp.(type) {
		case *packets.ConnectPacket:
			ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
			ack.ReturnCode = packets.Accepted
			_ = b.write(ack)
		case *packets.SubscribePacket:
			ack := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
			ack.MessageID = p.MessageID
			ack.ReturnCodes = p.Qoss
			_ = b.write(ack)
		case *packets.PublishPacket:
			if p.Qos == 1 {
				ack := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
				ack.MessageID = p.MessageID
				_ = b.write(ack)
			}
			if strings.Contains(p.TopicName, "/status/") {
				once.Do(func() { close(b.ready) })
			}
		case *packets.PingreqPacket:
			_ = b.write(packets.NewControlPacket(packets.Pingresp))
		case *packets.DisconnectPacket:
			return
		}
	}
}

func (b *loopbackBroker) publish(topic string, payload []byte) error {
	p := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	p.TopicName = topic
	p.Payload = payload
	return b.write(p)
}

type orderRemote struct {
	mu      sync.Mutex
	applied []notes.Note
}

func (r *orderRemote) LocalID() notes.ParticipantID { return "guitar_local" }

func (r *orderRemote) ReplaceRemote(_ notes.ParticipantID, ns []notes.Note) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(ns) == 1 {
		r.applied = append(r.applied, ns[0])
	}
}

func (r *orderRemote) snapshot() []notes.Note {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notes.Note(nil), r.applied...)
}

func TestMQTTDeliversOnePeersMessagesInOrder(t *testing.T) {
	broker := startLoopbackBroker(t)
	remote := &orderRemote{}
	dial := MQTTDialer(MQTTOptions{Host: "127.0.0.1", Port: broker.port(), ConnectTimeout: 5 * time.Second})
	a := New(dial, remote, Options{Instrument: "guitar"})
	require.NoError(t, a.Connect())
	t.Cleanup(func() { _ = a.Close() })

	select {
	case <-broker.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("client never announced itself")
	}

	n := int(notes.MaxNote) + 1
	for i := 0; i < n; i++ {
		payload := fmt.Appendf(nil, `{"client_id":"piano_seq","instrument":"piano","notes":[%d]}`, i)
		require.NoError(t, broker.publish("centaurus/music/notes/piano", payload))
	}

	require.Eventually(t, func() bool { return len(remote.snapshot()) == n }, 5*time.Second, 5*time.Millisecond)
	got := remote.snapshot()
	for i, note := range got {
		require.Equal(t, notes.Note(i), note, "message %d applied out of order", i)
	}
	assert.Equal(t, notes.Note(notes.MaxNote), got[len(got)-1], "last message wins")
}

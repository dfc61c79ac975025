package output

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norasector/samedec/pkg/receiver/alert"
	"github.com/norasector/samedec/pkg/receiver/config"
	"github.com/norasector/samedec/pkg/same/message"
	"github.com/norasector/samedec/pkg/util"
)

const testHeader = "ZCZC-WXR-RWT-012057-012081-012101-012103-012115+0030-2780415-WTSP/TV-"

var received = time.Date(2021, 10, 5, 4, 15, 30, 0, time.UTC)

func headerAlert(t *testing.T) *alert.Alert {
	t.Helper()
	msg, err := message.Decode([]byte(testHeader))
	require.NoError(t, err)
	return alert.New("wx1", msg, received)
}

func eomAlert() *alert.Alert {
	return alert.New("wx1", message.Message{Kind: message.EndOfMessage}, received)
}

// deliver queues alerts and runs the output until it has drained them.
func deliver(t *testing.T, start func(context.Context) error, recv chan<- *alert.Alert, alerts ...*alert.Alert) {
	t.Helper()
	for _, a := range alerts {
		recv <- a
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, start(ctx), context.Canceled)
}

func TestWriterOutput(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterOutput(&buf)
	deliver(t, w.Start, w.Receive(), headerAlert(t), eomAlert())

	assert.Equal(t,
		"2021-10-05T04:15:30Z wx1 "+testHeader+"\n"+
			"2021-10-05T04:15:30Z wx1 NNNN\n",
		buf.String())
}

func TestEncodeDecode(t *testing.T) {
	a := headerAlert(t)
	datagram, err := Encode(a)
	require.NoError(t, err)

	pb, err := Decode(datagram)
	require.NoError(t, err)
	fields := pb.AsMap()
	assert.Equal(t, a.ID.String(), fields["id"])
	assert.Equal(t, "RWT", fields["event"])
	assert.Equal(t, "WXR", fields["originator"])
	assert.Equal(t, 30.0, fields["purge_minutes"])
	assert.Equal(t, []interface{}{"012057", "012081", "012101", "012103", "012115"}, fields["locations"])
	assert.Equal(t, "2021-10-05T04:15:00Z", fields["issued"])

	_, err = Decode(datagram[:1])
	assert.Error(t, err)
	_, err = Decode(datagram[:len(datagram)-1])
	assert.Error(t, err)
}

func TestUDPOutput(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()

	port := listener.LocalAddr().(*net.UDPAddr).Port
	out := NewUDPOutput([]config.OutputDestination{{Host: "127.0.0.1", Port: port}}, &util.MockWriteAPI{})
	a := headerAlert(t)
	deliver(t, out.Start, out.Receive(), a)

	require.NoError(t, listener.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 65536)
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)

	pb, err := Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, a.ID.String(), pb.AsMap()["id"])
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mqtt.Client
	connectErr error

	mu           sync.Mutex
	published    []published
	disconnected bool
}

func (c *fakeClient) Connect() mqtt.Token {
	return &fakeToken{err: c.connectErr}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	c.published = append(c.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	c.mu.Unlock()
	return &fakeToken{}
}

func TestMQTTOutput(t *testing.T) {
	client := &fakeClient{}
	out := NewMQTTOutput(config.MQTT{Broker: "tcp://localhost:1883", Topic: "same/alerts", ClientID: "test"})
	var opts *mqtt.ClientOptions
	out.newClient = func(o *mqtt.ClientOptions) mqtt.Client {
		opts = o
		return client
	}

	a := headerAlert(t)
	deliver(t, out.Start, out.Receive(), a, eomAlert())

	require.NotNil(t, opts)
	assert.Equal(t, "test", opts.ClientID)
	assert.True(t, client.disconnected)

	require.Len(t, client.published, 2)
	assert.Equal(t, "same/alerts/wx1/RWT", client.published[0].topic)
	assert.Equal(t, byte(1), client.published[0].qos)
	assert.Equal(t, "same/alerts/wx1/eom", client.published[1].topic)

	var r alert.Record
	require.NoError(t, json.Unmarshal(client.published[0].payload, &r))
	assert.Equal(t, a.ID.String(), r.ID)
	assert.Equal(t, "National Weather Service", r.OriginatorName)
}

func TestMQTTConnectError(t *testing.T) {
	out := NewMQTTOutput(config.MQTT{Broker: "tcp://localhost:1883", Topic: "same/alerts"})
	out.newClient = func(*mqtt.ClientOptions) mqtt.Client {
		return &fakeClient{connectErr: assert.AnError}
	}
	assert.ErrorIs(t, out.Start(context.Background()), assert.AnError)
}

func TestAlertLogOutput(t *testing.T) {
	dir := t.TempDir()
	out, err := NewAlertLogOutput(filepath.Join(dir, "alerts", "%Y-%m-%d.csv"))
	require.NoError(t, err)

	a := headerAlert(t)
	nextDay := alert.New("wx2", message.Message{Kind: message.EndOfMessage}, received.Add(24*time.Hour))
	deliver(t, out.Start, out.Receive(), a, eomAlert(), nextDay)

	rows := readCSV(t, filepath.Join(dir, "alerts", "2021-10-05.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, alertLogHeader, rows[0])
	assert.Equal(t, []string{
		a.ID.String(), "wx1", "1633407330", "2021-10-05T04:15:30Z", "header", "WXR", "RWT",
		"012057 012081 012101 012103 012115", "30", "2021-10-05T04:15:00Z", "WTSP/TV", testHeader,
	}, rows[1])
	assert.Equal(t, "NNNN", rows[2][11])
	assert.Equal(t, "", rows[2][8])

	rows = readCSV(t, filepath.Join(dir, "alerts", "2021-10-06.csv"))
	require.Len(t, rows, 2)
	assert.Equal(t, "wx2", rows[1][1])

	// Appending to an existing file does not repeat the header.
	out, err = NewAlertLogOutput(filepath.Join(dir, "alerts", "%Y-%m-%d.csv"))
	require.NoError(t, err)
	deliver(t, out.Start, out.Receive(), eomAlert())
	assert.Len(t, readCSV(t, filepath.Join(dir, "alerts", "2021-10-05.csv")), 4)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

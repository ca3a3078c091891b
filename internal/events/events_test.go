package events

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
)

func TestBusDelivers(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(4)
	defer cancel()

	bus.Publish(Event{Type: ZoneTriggered, Camera: "cam1", ZoneID: "z1"})

	select {
	case e := <-ch:
		if e.Type != ZoneTriggered || e.ZoneID != "z1" {
			t.Errorf("Unexpected event %+v", e)
		}
		if e.ID == "" || e.Time.IsZero() {
			t.Error("Expected Publish to stamp id and time")
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestBusNeverBlocks(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(New(MotionDetected))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestBusCancelAndClose(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("Expected channel closed after cancel")
	}
	if bus.Subscribers() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", bus.Subscribers())
	}

	ch2, _ := bus.Subscribe(1)
	bus.Close()
	if _, ok := <-ch2; ok {
		t.Error("Expected channel closed after bus Close")
	}
	bus.Publish(New(DetectorIdle))

	ch3, _ := bus.Subscribe(1)
	if _, ok := <-ch3; ok {
		t.Error("Subscribing to a closed bus must return a closed channel")
	}
}

func TestTopic(t *testing.T) {
	tests := []struct {
		e    Event
		want string
	}{
		{Event{Type: ZoneTriggered, Camera: "front"}, "rb/front/zone_triggered"},
		{Event{Type: DetectorArmed}, "rb/detector_armed"},
	}
	for _, tt := range tests {
		if got := Topic("rb", tt.e); got != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, got)
		}
	}
}

func TestHubStreamsEvents(t *testing.T) {
	bus := NewBus()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, bus)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 || bus.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(Event{Type: MotionDetected, Camera: "cam1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if got.Type != MotionDetected || got.Camera != "cam1" {
		t.Errorf("Unexpected event %+v", got)
	}
}

type doneToken struct{ err error }

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type fakeClient struct {
	mqtt.Client

	mu        sync.Mutex
	published map[string][]byte
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = payload.([]byte)
	return doneToken{}
}

func (f *fakeClient) Disconnect(uint) {}

func TestMQTTPublisher(t *testing.T) {
	fc := &fakeClient{published: make(map[string][]byte)}
	p := newMQTTPublisher(fc, "rb", 0)

	if err := p.Publish(Event{Type: ZoneTriggered, Camera: "cam1", ZoneID: "z1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	payload, ok := fc.published["rb/cam1/zone_triggered"]
	if !ok {
		t.Fatalf("Expected publish on rb/cam1/zone_triggered, got %v", fc.published)
	}
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		t.Fatalf("Invalid payload: %v", err)
	}
	if e.ZoneID != "z1" {
		t.Errorf("Expected zone z1, got %q", e.ZoneID)
	}
}

package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"camwatch/internal/camera"
)

// EventKind はイベントの種類
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventRemoved EventKind = "removed"
	EventError   EventKind = "error"
)

// Event はクライアントに配信するデバイスイベント
type Event struct {
	Kind      EventKind          `json:"kind"`
	Device    *camera.DeviceInfo `json:"device,omitempty"`
	Message   string             `json:"message,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// subscriberBuffer は1購読者あたりに溜められるイベント数
const subscriberBuffer = 32

// EventHub は Watcher の通知を複数のクライアントに配る
//
// 受信が追いつかない購読者へのイベントは捨てる。Watcher の再同期を止めないため。
type EventHub struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]chan Event
	closed      bool
	unsubscribe []func()
	now         func() time.Time
}

// NewEventHub は watcher の通知を購読する EventHub を作成する
func NewEventHub(watcher *camera.Watcher) *EventHub {
	hub := &EventHub{
		subscribers: make(map[uuid.UUID]chan Event),
		now:         time.Now,
	}

	hub.unsubscribe = []func(){
		watcher.OnDeviceAdded(func(device camera.DeviceInfo) error {
			hub.publish(Event{Kind: EventAdded, Device: &device})
			return nil
		}),
		watcher.OnDeviceRemoved(func(device camera.DeviceInfo) error {
			hub.publish(Event{Kind: EventRemoved, Device: &device})
			return nil
		}),
		watcher.OnError(func(err error) {
			hub.publish(Event{Kind: EventError, Message: err.Error()})
		}),
	}
	return hub
}

// Subscribe はイベントを受け取るチャネルと解除関数を返す
//
// Close 後に呼ぶと閉じたチャネルを返す。
func (h *EventHub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := uuid.New()
	h.subscribers[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(sub)
		}
	}
}

// Subscribers は現在の購読者数を返す
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *EventHub) publish(event Event) {
	event.Timestamp = h.now()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close は Watcher の購読を解除し、全ての購読者のチャネルを閉じる
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true

	for _, unsubscribe := range h.unsubscribe {
		unsubscribe()
	}
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}

package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmitter struct {
	mu     sync.Mutex
	events []map[string]interface{}
}

func (f *fakeEmitter) Emit(eventType, source, subject string, data map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, data)
}

func (f *fakeEmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestNotifier_NotifyAndBroadcast(t *testing.T) {
	bus := &fakeEmitter{}
	n := New(bus)

	ctx, cancel := context.WithCancel(context.Background())
	go n.Run(ctx)

	n.Notify(Notification{AttackerID: 1, AttackerName: "red", VictimID: 2, VictimName: "blue", Points: 12.345})

	require.Eventually(t, func() bool { return bus.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	n.Stop()

	assert.Equal(t, 12.35, bus.events[0]["points"])
}

func TestNotifier_DropsWhenQueueFull(t *testing.T) {
	bus := &fakeEmitter{}
	n := New(bus)

	for i := 0; i < queueCapacity+10; i++ {
		n.Notify(Notification{AttackerID: i})
	}

	assert.LessOrEqual(t, len(n.queue), queueCapacity)
}

func TestRoundTo2(t *testing.T) {
	assert.Equal(t, 1.23, roundTo2(1.234))
	assert.Equal(t, 1.24, roundTo2(1.235))
}

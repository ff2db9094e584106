package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishToSubscriber(t *testing.T) {
	bus := NewBus()
	received := make(chan *Event, 1)

	bus.Subscribe(AutonomousProgress, func(event *Event) {
		received <- event
	})

	bus.Publish(&ProgressData{Phase: 1, Status: PhaseStarting, Message: "phase 1"})

	select {
	case event := <-received:
		assert.Equal(t, AutonomousProgress, event.Type)
		data, ok := event.Data.(*ProgressData)
		require.True(t, ok)
		assert.Equal(t, 1, data.Phase)
		assert.Equal(t, PhaseStarting, data.Status)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_PublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	bus := NewBus()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(&LogData{Message: "dropped"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func TestBus_SubscribeAllReceivesEveryType(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	seen := make(map[EventType]int)
	var wg sync.WaitGroup
	wg.Add(2)

	bus.SubscribeAll(func(event *Event) {
		mu.Lock()
		seen[event.Type]++
		mu.Unlock()
		wg.Done()
	})

	bus.Publish(&ProgressData{Phase: 2, Status: PhaseComplete})
	bus.Publish(&TradeData{Action: TradeOpened, TradeID: 7})

	waitTimeout(t, &wg, time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen[AutonomousProgress])
	assert.Equal(t, 1, seen[AutonomousTrade])
}

func TestBus_TypeFilteredSubscriberDoesNotCrossReceive(t *testing.T) {
	bus := NewBus()

	var wg sync.WaitGroup
	wg.Add(1)
	var got EventType
	bus.Subscribe(AutonomousTrade, func(event *Event) {
		got = event.Type
		wg.Done()
	})

	bus.Publish(&LogData{Message: "ignored"})
	bus.Publish(&TradeData{Action: TradeClosed, TradeID: 3})

	waitTimeout(t, &wg, time.Second)
	assert.Equal(t, AutonomousTrade, got)
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for handlers")
	}
}

package sse

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcast_NoSubscribersIsNoop(t *testing.T) {
	b := NewBroadcaster()
	b.Broadcast(map[string]string{"type": "observation_created"})
	assert.Equal(t, 0, b.ClientCount())
}

func TestBroadcast_QueuesToEverySubscriber(t *testing.T) {
	b := NewBroadcaster()
	first := b.subscribe()
	second := b.subscribe()
	assert.Equal(t, 2, b.ClientCount())

	b.Broadcast(map[string]string{"type": "summary_created", "project": "claude-mem"})

	for _, sub := range []*subscriber{first, second} {
		select {
		case payload := <-sub.ch:
			assert.Contains(t, string(payload), "summary_created")
		default:
			t.Fatalf("subscriber %d got no payload", sub.id)
		}
	}
}

func TestBroadcast_DropsSlowSubscriber(t *testing.T) {
	b := NewBroadcaster()
	sub := b.subscribe()

	// Fill the buffer without draining, then overflow it.
	for i := 0; i <= subscriberBuffer; i++ {
		b.Broadcast(map[string]int{"seq": i})
	}

	assert.Equal(t, 0, b.ClientCount())
	// Channel is closed once dropped.
	drained := 0
	for range sub.ch {
		drained++
	}
	assert.Equal(t, subscriberBuffer, drained)
}

func TestBroadcast_UnmarshalableDataIsDiscarded(t *testing.T) {
	b := NewBroadcaster()
	sub := b.subscribe()

	b.Broadcast(make(chan int))

	select {
	case <-sub.ch:
		t.Fatal("unmarshalable event should not reach subscribers")
	default:
	}
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	b := NewBroadcaster()
	sub := b.subscribe()
	b.unsubscribe(sub)
	b.unsubscribe(sub)
	assert.Equal(t, 0, b.ClientCount())
}

func TestHandleSSE_StreamsEvents(t *testing.T) {
	b := NewBroadcaster()
	srv := httptest.NewServer(http.HandlerFunc(b.HandleSSE))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"type":"connected"`)

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	b.Broadcast(map[string]string{"type": "observation_created", "title": "Cache layer added"})

	deadline := time.After(2 * time.Second)
	for {
		lineCh := make(chan string, 1)
		go func() {
			l, err := reader.ReadString('\n')
			if err == nil {
				lineCh <- l
			}
		}()
		select {
		case l := <-lineCh:
			if strings.Contains(l, "observation_created") {
				assert.Contains(t, l, "Cache layer added")
				return
			}
		case <-deadline:
			t.Fatal("broadcast event never arrived on the stream")
		}
	}
}

func TestHandleSSE_ClientDisconnectRemovesSubscriber(t *testing.T) {
	b := NewBroadcaster()
	srv := httptest.NewServer(http.HandlerFunc(b.HandleSSE))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	resp.Body.Close()
	require.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestConcurrentBroadcastAndSubscribe(t *testing.T) {
	b := NewBroadcaster()

	var mu sync.Mutex
	var subs []*subscriber

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := b.subscribe()
			mu.Lock()
			subs = append(subs, sub)
			mu.Unlock()
			for range sub.ch {
			}
		}()
		go func(i int) {
			defer wg.Done()
			b.Broadcast(map[string]int{"seq": i})
		}(i)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(subs) == 20
	}, time.Second, 10*time.Millisecond)

	for _, sub := range subs {
		b.unsubscribe(sub)
	}
	wg.Wait()
	assert.Equal(t, 0, b.ClientCount())
}

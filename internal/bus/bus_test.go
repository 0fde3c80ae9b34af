package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hifibridge/internal/zone"
)

func recv(t *testing.T, sub *Subscription) (Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return sub.Recv(ctx)
}

func TestBus_DeliversInPublishOrder(t *testing.T) {
	b := New(16)
	sub := b.Subscribe()
	defer sub.Close()

	for i := 0; i < 5; i++ {
		b.Publish(SeekPositionChanged{ZoneID: "sim:a", Position: int64(i)})
	}

	for i := 0; i < 5; i++ {
		ev, err := recv(t, sub)
		require.NoError(t, err)
		assert.Equal(t, int64(i), ev.(SeekPositionChanged).Position)
	}
}

func TestBus_EverySubscriberSeesEveryEvent(t *testing.T) {
	b := New(16)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(ShuttingDown{Reason: "test"})

	for _, s := range []*Subscription{s1, s2} {
		ev, err := recv(t, s)
		require.NoError(t, err)
		assert.Equal(t, ShuttingDown{Reason: "test"}, ev)
	}

	s1.Close()
	s1.Close()
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBus_SubscriberOnlySeesLaterEvents(t *testing.T) {
	b := New(16)
	b.Publish(HealthCheck{})
	sub := b.Subscribe()

	_, ok, err := sub.TryRecv()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBus_PublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	b := New(4)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10_000; i++ {
			b.Publish(HealthCheck{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked")
	}
	assert.Equal(t, int64(10_000), b.Metrics().Published)
}

func TestBus_SlowSubscriberLags(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Publish(SeekPositionChanged{ZoneID: "sim:a", Position: int64(i)})
	}

	_, err := recv(t, sub)
	skipped, lagged := IsLagged(err)
	require.True(t, lagged, "expected lag, got %v", err)
	assert.Equal(t, uint64(6), skipped)

	// resumes at the oldest retained event
	for want := int64(6); want < 10; want++ {
		ev, err := recv(t, sub)
		require.NoError(t, err)
		assert.Equal(t, want, ev.(SeekPositionChanged).Position)
	}

	m := b.Metrics()
	assert.Equal(t, int64(1), m.LagNotices)
	assert.Equal(t, int64(6), m.Skipped)
}

func TestBus_RecvHonoursContext(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := sub.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_RecvWakesOnPublish(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()

	got := make(chan Event, 1)
	go func() {
		ev, _ := recv(t, sub)
		got <- ev
	}()

	time.Sleep(10 * time.Millisecond)
	b.Publish(AdapterStopped{Adapter: "sim"})

	select {
	case ev := <-got:
		assert.Equal(t, AdapterStopped{Adapter: "sim"}, ev)
	case <-time.After(time.Second):
		t.Fatal("receiver not woken")
	}
}

func TestBus_CloseDrainsThenErrors(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	b.Publish(HealthCheck{})
	b.Close()
	b.Publish(HealthCheck{}) // ignored

	_, err := recv(t, sub)
	require.NoError(t, err)
	_, err = recv(t, sub)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBus_ConcurrentPublishers(t *testing.T) {
	b := New(1024)
	sub := b.Subscribe()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Publish(HealthCheck{})
			}
		}()
	}
	wg.Wait()

	n := 0
	for {
		_, ok, err := sub.TryRecv()
		require.NoError(t, err)
		if !ok {
			break
		}
		n++
	}
	assert.Equal(t, 400, n)
}

func TestFilterByKind(t *testing.T) {
	f := FilterByKind(KindZoneDiscovered, KindZoneRemoved)
	assert.True(t, f(ZoneRemoved{ZoneID: "sim:a"}))
	assert.False(t, f(HealthCheck{}))
	assert.True(t, FilterByKind()(HealthCheck{}))
}

func TestZoneIDOf(t *testing.T) {
	assert.Equal(t, "sim:a", ZoneIDOf(ZoneDiscovered{Zone: zone.Zone{ID: "sim:a"}}))
	assert.Equal(t, "sim:b", ZoneIDOf(NowPlayingChanged{ZoneID: "sim:b"}))
	assert.Equal(t, "", ZoneIDOf(VolumeChanged{OutputID: "sim:a"}))
	assert.Equal(t, "", ZoneIDOf(ShuttingDown{}))
}

func TestEncode(t *testing.T) {
	data, err := Encode(ZoneRemoved{ZoneID: "sim:a"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "zone.removed", decoded["type"])
	assert.Equal(t, map[string]any{"zone_id": "sim:a"}, decoded["payload"])
}

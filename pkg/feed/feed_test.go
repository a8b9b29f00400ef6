package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroValueUsable(t *testing.T) {
	var f Feed[int]

	_, ok := f.Value()
	assert.False(t, ok)

	f.Set(3)
	v, ok := f.Value()
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestNewCountsAsSet(t *testing.T) {
	f := New([]string(nil))

	v, ok := f.Value()
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestSubscribeReceivesLaterValues(t *testing.T) {
	f := New(0)
	f.Set(1)

	sub := f.Subscribe(4)
	defer f.Unsubscribe(sub)

	f.Set(2)

	select {
	case got := <-sub.C:
		assert.Equal(t, 2, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}

	select {
	case got := <-sub.C:
		t.Fatalf("unexpected extra value %d", got)
	default:
	}
}

func TestFanOut(t *testing.T) {
	f := New("")
	a := f.Subscribe(1)
	b := f.Subscribe(1)
	defer f.Unsubscribe(a)
	defer f.Unsubscribe(b)

	f.Set("x")

	assert.Equal(t, "x", <-a.C)
	assert.Equal(t, "x", <-b.C)
}

func TestSlowSubscriberKeepsLatest(t *testing.T) {
	f := New(0)
	sub := f.Subscribe(1)
	defer f.Unsubscribe(sub)

	for i := 1; i <= 10; i++ {
		f.Set(i)
	}

	assert.Equal(t, 10, <-sub.C)

	select {
	case v := <-sub.C:
		t.Fatalf("expected empty channel, got %d", v)
	default:
	}
}

func TestSlowSubscriberLargerBuffer(t *testing.T) {
	f := New(0)
	sub := f.Subscribe(3)
	defer f.Unsubscribe(sub)

	for i := 1; i <= 5; i++ {
		f.Set(i)
	}

	var got []int
	for range 3 {
		got = append(got, <-sub.C)
	}
	assert.Equal(t, []int{3, 4, 5}, got)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	f := New(0)
	sub := f.Subscribe(1)

	f.Unsubscribe(sub)

	_, ok := <-sub.C
	assert.False(t, ok)

	// Second call is harmless.
	f.Unsubscribe(sub)
	f.Set(1)
}

func TestCloseReleasesEveryone(t *testing.T) {
	f := New(0)
	a := f.Subscribe(1)
	b := f.Subscribe(1)

	f.Close()
	f.Close()

	_, ok := <-a.C
	assert.False(t, ok)
	_, ok = <-b.C
	assert.False(t, ok)

	f.Set(7)
	v, _ := f.Value()
	assert.Equal(t, 7, v)

	late := f.Subscribe(1)
	_, ok = <-late.C
	assert.False(t, ok, "subscribing to a closed feed yields a closed channel")
}

func TestWatch(t *testing.T) {
	f := New(0)

	done := make(chan int, 1)
	go func() {
		v, err := f.Watch(context.Background(), func(v int) bool { return v >= 3 })
		assert.NoError(t, err)
		done <- v
	}()

	for i := 1; i <= 3; i++ {
		f.Set(i)
	}

	select {
	case v := <-done:
		assert.Equal(t, 3, v)
	case <-time.After(time.Second):
		t.Fatal("watch did not return")
	}
}

func TestWatchAlreadySatisfied(t *testing.T) {
	f := New(5)

	v, err := f.Watch(context.Background(), func(v int) bool { return v == 5 })
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestWatchContextCancelled(t *testing.T) {
	var f Feed[int]

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Watch(ctx, func(int) bool { return true })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentSetAndSubscribe(t *testing.T) {
	f := New(0)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			sub := f.Subscribe(2)
			f.Set(i)
			f.Unsubscribe(sub)
		})
	}
	wg.Wait()

	_, ok := f.Value()
	assert.True(t, ok)
}

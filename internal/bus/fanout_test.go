package bus

import (
	"context"
	"testing"
	"time"
)

func TestFanOut_Broadcast(t *testing.T) {
	f := New[int](10)
	a := f.Subscribe()
	b := f.Subscribe()

	for i := 0; i < 3; i++ {
		f.Publish(i)
	}

	for _, ch := range []<-chan int{a, b} {
		for want := 0; want < 3; want++ {
			select {
			case got := <-ch:
				if got != want {
					t.Errorf("got %d, want %d", got, want)
				}
			default:
				t.Fatalf("subscriber missing value %d", want)
			}
		}
	}
}

func TestFanOut_SlowSubscriberDrops(t *testing.T) {
	f := New[int](1)
	slow := f.Subscribe()

	drops := 0
	f.OnDrop = func(int) { drops++ }

	f.Publish(1)
	f.Publish(2) // slow's buffer is full; dropped for it

	if drops != 1 {
		t.Errorf("expected 1 drop, got %d", drops)
	}
	if got := <-slow; got != 1 {
		t.Errorf("first value lost: got %d", got)
	}
}

func TestFanOut_RunClosesSubscribers(t *testing.T) {
	f := New[int](10)
	sub := f.Subscribe()

	input := make(chan int, 4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.Run(ctx, input)
		close(done)
	}()

	input <- 7
	select {
	case got := <-sub:
		if got != 7 {
			t.Errorf("got %d, want 7", got)
		}
	case <-time.After(time.Second):
		t.Fatal("value not fanned out")
	}

	cancel()
	<-done

	if _, ok := <-sub; ok {
		t.Error("subscriber channel not closed after Run returned")
	}
}

func TestFanOut_ChannelStats(t *testing.T) {
	f := New[int](5)
	f.Subscribe()
	f.Publish(1)
	f.Publish(2)

	stats := f.ChannelStats()
	if len(stats) != 1 {
		t.Fatalf("expected 1 stat, got %d", len(stats))
	}
	if stats[0].Len != 2 || stats[0].Cap != 5 {
		t.Errorf("stats=%+v", stats[0])
	}
}

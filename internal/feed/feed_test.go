package feed_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgate/taskgate/internal/feed"
)

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	t.Parallel()

	f := feed.New()
	sub := f.Subscribe()

	defer sub.Cancel()

	want := feed.Event{Table: feed.TableTasks, Kind: feed.KindUpdate, RecordID: "t1"}
	f.Publish(want)

	select {
	case got := <-sub.C:
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	t.Parallel()

	f := feed.New()
	first := f.Subscribe()
	second := f.Subscribe()

	defer first.Cancel()
	defer second.Cancel()

	f.Publish(feed.Event{Table: feed.TableRestrictions, Kind: feed.KindInsert, RecordID: "r1"})

	for _, sub := range []*feed.Subscription{first, second} {
		select {
		case got := <-sub.C:
			assert.Equal(t, "r1", got.RecordID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestCancelStopsDeliveryAndClosesChannel(t *testing.T) {
	t.Parallel()

	f := feed.New()
	sub := f.Subscribe()

	sub.Cancel()
	sub.Cancel() // idempotent

	f.Publish(feed.Event{Table: feed.TableTasks, Kind: feed.KindDelete, RecordID: "t1"})

	_, open := <-sub.C
	require.False(t, open, "channel should be closed after Cancel")
}

func TestPublishDropsWhenSubscriberIsFull(t *testing.T) {
	t.Parallel()

	f := feed.New()
	sub := f.Subscribe()

	defer sub.Cancel()

	// Overfill the buffer; Publish must not block.
	done := make(chan struct{})

	go func() {
		for i := range 200 {
			f.Publish(feed.Event{Table: feed.TableTasks, Kind: feed.KindUpdate, RecordID: string(rune('a' + i%26))})
		}

		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

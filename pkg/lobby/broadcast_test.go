package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/Simlowker/solduel-gaming-platform/game"
)

func receiveBatch(t *testing.T, ch <-chan []Update) []Update {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
		return nil
	}
}

func TestBroadcasterFansOutToAllListeners(t *testing.T) {
	b := NewBroadcaster(4)

	first, cancelFirst := b.Listen(context.Background())
	defer cancelFirst()
	second, cancelSecond := b.Listen(context.Background())
	defer cancelSecond()

	batch := []Update{{SessionID: 7, Kind: game.KindSimpleDuel, State: game.StateWaiting}}
	b.Send(batch)

	got := receiveBatch(t, first)
	if len(got) != 1 || got[0].SessionID != 7 {
		t.Errorf("first listener got %+v, expected session 7", got)
	}
	got = receiveBatch(t, second)
	if len(got) != 1 || got[0].SessionID != 7 {
		t.Errorf("second listener got %+v, expected session 7", got)
	}
}

func TestBroadcasterCancelUnregistersListener(t *testing.T) {
	b := NewBroadcaster(4)

	ch, cancel := b.Listen(context.Background())
	keep, cancelKeep := b.Listen(context.Background())
	defer cancelKeep()

	cancel()

	// The cancelled listener's channel closes once it is removed.
	deadline := time.After(2 * time.Second)
	closed := false
	for !closed {
		select {
		case _, ok := <-ch:
			closed = !ok
		case <-deadline:
			t.Fatal("timed out waiting for cancelled listener channel to close")
		}
	}

	// Remaining listeners still receive.
	b.Send([]Update{{SessionID: 9}})
	got := receiveBatch(t, keep)
	if len(got) != 1 || got[0].SessionID != 9 {
		t.Errorf("remaining listener got %+v, expected session 9", got)
	}
}

func TestBroadcasterDropsForSlowListener(t *testing.T) {
	b := NewBroadcaster(1)

	slow, cancelSlow := b.Listen(context.Background())
	defer cancelSlow()

	// Fill the slow listener's buffer, then send again; neither call may block.
	b.Send([]Update{{SessionID: 1}})
	b.Send([]Update{{SessionID: 2}})

	got := receiveBatch(t, slow)
	if got[0].SessionID != 1 {
		t.Errorf("expected buffered batch for session 1, got %+v", got)
	}
	select {
	case extra := <-slow:
		t.Errorf("expected second batch to be dropped, got %+v", extra)
	default:
	}
}

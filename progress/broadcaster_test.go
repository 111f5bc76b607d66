package progress

import (
	"testing"

	"github.com/typecraft-io/typeset/types"
)

func TestBroadcastToAllSubscribers(t *testing.T) {
	b := NewBroadcaster()

	var got1, got2 []types.ProgressEvent
	b.Subscribe(func(e types.ProgressEvent) { got1 = append(got1, e) })
	b.Subscribe(func(e types.ProgressEvent) { got2 = append(got2, e) })

	b.Emit(types.ProgressEvent{Stage: types.StageRetry, Message: "retrying"})

	if len(got1) != 1 || len(got2) != 1 {
		t.Fatalf("deliveries = %d, %d; want 1, 1", len(got1), len(got2))
	}
	if got1[0].Stage != types.StageRetry {
		t.Errorf("stage = %q", got1[0].Stage)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster()

	var got []types.ProgressEvent
	unsub := b.Subscribe(func(e types.ProgressEvent) { got = append(got, e) })

	b.Emit(types.ProgressEvent{Stage: types.StageCleaning})
	unsub()
	b.Emit(types.ProgressEvent{Stage: types.StageRetry})

	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
}

func TestEmitAfterCloseIsNoop(t *testing.T) {
	b := NewBroadcaster()

	var got int
	b.Subscribe(func(types.ProgressEvent) { got++ })
	b.Close()
	b.Emit(types.ProgressEvent{Stage: types.StagePkgInstall})

	if got != 0 {
		t.Errorf("deliveries after close = %d, want 0", got)
	}
}

func TestEmitWithNoSubscribersDiscards(t *testing.T) {
	b := NewBroadcaster()
	// Must not panic or block.
	b.Emit(types.ProgressEvent{Stage: types.StageFontInstall})
}

func TestSubscribeAfterClose(t *testing.T) {
	b := NewBroadcaster()
	b.Close()
	unsub := b.Subscribe(func(types.ProgressEvent) { t.Fatal("handler must never fire") })
	unsub()
	b.Emit(types.ProgressEvent{Stage: types.StageRetry})
}

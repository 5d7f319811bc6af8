package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/parlancehq/parlance/pkg/audio"
)

func testStreamConfig() audio.StreamConfig {
	return audio.StreamConfig{
		SampleRate:    16000,
		Channels:      1,
		FrameDuration: 20 * time.Millisecond,
	}
}

func TestSocketSourceDeliversFrames(t *testing.T) {
	t.Parallel()

	src := &socketSource{}
	stream, err := src.Open(context.Background(), testStreamConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// 20ms of 16kHz mono s16le.
	payload := make([]byte, 640)
	src.push(payload)

	select {
	case f := <-stream.Frames():
		if len(f.PCM) != 640 {
			t.Errorf("frame size: %d", len(f.PCM))
		}
		if f.Duration != 20*time.Millisecond {
			t.Errorf("frame duration: %v", f.Duration)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}
}

func TestSocketSourcePushWithoutStreamDropped(t *testing.T) {
	t.Parallel()

	src := &socketSource{}
	src.push(make([]byte, 640)) // must not panic or block

	stream, err := src.Open(context.Background(), testStreamConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	select {
	case f := <-stream.Frames():
		t.Errorf("stale payload delivered: %d bytes", len(f.PCM))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSocketStreamCloseEndsFrames(t *testing.T) {
	t.Parallel()

	src := &socketSource{}
	stream, err := src.Open(context.Background(), testStreamConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, ok := <-stream.Frames(); ok {
		t.Error("frames channel still open after Close")
	}

	src.push(make([]byte, 640)) // late payload after close must be dropped
}

func TestSocketSourceReplacesOpenStream(t *testing.T) {
	t.Parallel()

	src := &socketSource{}
	first, err := src.Open(context.Background(), testStreamConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	second, err := src.Open(context.Background(), testStreamConfig())
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}

	// The first stream ended when the second opened.
	if _, ok := <-first.Frames(); ok {
		t.Error("first stream still open")
	}

	src.push(make([]byte, 320))
	select {
	case <-second.Frames():
	case <-time.After(time.Second):
		t.Fatal("second stream got no frame")
	}
}

func TestSocketSourceClosedRejectsOpen(t *testing.T) {
	t.Parallel()

	src := &socketSource{}
	src.close()
	if _, err := src.Open(context.Background(), testStreamConfig()); err == nil {
		t.Error("Open succeeded on closed source")
	}
}

func TestSlowConsumerDropsOldest(t *testing.T) {
	t.Parallel()

	src := &socketSource{}
	stream, err := src.Open(context.Background(), testStreamConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Overfill the buffer; push must never block the socket read loop.
	for i := 0; i < 200; i++ {
		src.push(make([]byte, 640))
	}

	n := 0
	for {
		select {
		case <-stream.Frames():
			n++
		default:
			if n == 0 || n > 64 {
				t.Errorf("buffered frames: %d", n)
			}
			return
		}
	}
}

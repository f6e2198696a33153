package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldlog/trackexport/internal/audio"
)

// livePath wires a LiveSink into a pipeline and a broadcaster the way the
// monitor does. done is closed once the broadcaster has stopped.
func livePath(t *testing.T, speed float64) (*LiveSink, *Broadcaster, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	p := audio.NewPipeline(speed)
	go p.Run(ctx)
	b := NewBroadcaster()
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx, p.Frames())
	}()
	return NewLiveSink(ctx, p, audio.SampleRate), b, cancel, done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("broadcaster did not stop")
	}
}

func constant(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestBroadcastResampledBlocks(t *testing.T) {
	sink, b, _, done := livePath(t, 100)
	listeners := []*Listener{b.Subscribe(), b.Subscribe()}

	// Two adjacent 20 ms blocks at 16 kHz become two 48 kHz frames.
	r, err := audio.NewResampler(audio.SampleRate, audio.WithInputRate(16000))
	if err != nil {
		t.Fatal(err)
	}
	for _, t0 := range []float64{0, 0.02} {
		out := r.PushBlock(t0, constant(320, 0.5))
		if len(out) != audio.FrameSamples {
			t.Fatalf("block at %v: %d samples, want %d", t0, len(out), audio.FrameSamples)
		}
		if err := sink.Audio(r.OutputStart(), out); err != nil {
			t.Fatalf("Audio error: %v", err)
		}
	}
	sink.Close()
	waitDone(t, done)

	if b.Frames() != 2 {
		t.Errorf("Frames = %d, want 2", b.Frames())
	}
	for i, l := range listeners {
		if len(l.C) != 2 || l.Dropped() != 0 {
			t.Errorf("listener %d: %d queued, %d dropped, want 2 and 0", i, len(l.C), l.Dropped())
			continue
		}
		for len(l.C) > 0 {
			f := <-l.C
			if len(f) != audio.FrameSamples || f[0] != 16383 || f[len(f)-1] != 16383 {
				t.Errorf("listener %d: frame of %d samples starting %d, want %d x 16383", i, len(f), f[0], audio.FrameSamples)
			}
		}
	}
	if got := sink.Status().AudioSeconds; got < 0.0399 || got > 0.0401 {
		t.Errorf("AudioSeconds = %v, want 0.04", got)
	}
}

func TestBroadcastSlowListenerDrops(t *testing.T) {
	const total = ListenerBuffer + 50
	sink, b, _, done := livePath(t, 10)
	slow := b.Subscribe()
	fast := b.Subscribe()

	got := make(chan int)
	go func() {
		n := 0
		for n < total {
			select {
			case <-fast.C:
				n++
			case <-time.After(2 * time.Second):
				got <- n
				return
			}
		}
		got <- n
	}()

	// Ten writes of twenty frames each.
	for i := 0; i < 10; i++ {
		start := float64(i*20) * audio.FrameDuration.Seconds()
		if err := sink.Audio(start, constant(20*audio.FrameSamples, 0.25)); err != nil {
			t.Fatalf("Audio error: %v", err)
		}
	}
	sink.Close()
	waitDone(t, done)

	if n := <-got; n != total || fast.Dropped() != 0 {
		t.Errorf("fast listener got %d frames, dropped %d, want %d and 0", n, fast.Dropped(), total)
	}
	if len(slow.C) != ListenerBuffer {
		t.Errorf("slow listener queued %d frames, want %d", len(slow.C), ListenerBuffer)
	}
	if slow.Dropped() != 50 {
		t.Errorf("slow listener dropped %d frames, want 50", slow.Dropped())
	}
	if b.Frames() != total {
		t.Errorf("Frames = %d, want %d", b.Frames(), total)
	}
}

func TestBroadcastStopsOnCancel(t *testing.T) {
	sink, b, cancel, done := livePath(t, 1)
	l := b.Subscribe()

	// Less than one frame: nothing reaches the listener before cancel.
	sink.Audio(0, constant(audio.FrameSamples/2, 0.5))
	cancel()
	waitDone(t, done)

	if b.Frames() != 0 || len(l.C) != 0 {
		t.Errorf("Frames = %d, queued = %d, want 0", b.Frames(), len(l.C))
	}
	sink.Close()
	if err := sink.Audio(0.01, constant(10, 0.5)); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Audio after Close error = %v, want ErrSinkClosed", err)
	}
}

func TestUnsubscribeTwice(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()
	other := b.Subscribe()

	b.Unsubscribe(l)
	b.Unsubscribe(l)

	select {
	case <-l.done:
	default:
		t.Error("done not closed after Unsubscribe")
	}
	if b.ListenerCount() != 1 {
		t.Errorf("ListenerCount = %d, want 1", b.ListenerCount())
	}
	select {
	case <-other.done:
		t.Error("remaining listener was signalled")
	default:
	}
}

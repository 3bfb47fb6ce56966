package frame

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func testFrame(seq uint64) *Frame {
	return &Frame{Seq: seq, Width: 2, Height: 2, Channels: 3, Pix: make([]byte, 12)}
}

func TestFrame_Valid(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
		empty bool
		valid bool
	}{
		{name: "nil", frame: nil, empty: true, valid: false},
		{name: "no pixels", frame: &Frame{Width: 2, Height: 2, Channels: 3}, empty: true, valid: false},
		{name: "short buffer", frame: &Frame{Width: 2, Height: 2, Channels: 3, Pix: make([]byte, 5)}, empty: false, valid: false},
		{name: "complete", frame: testFrame(1), empty: false, valid: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.frame.Empty(); got != tc.empty {
				t.Errorf("Empty: got %v, want %v", got, tc.empty)
			}
			if got := tc.frame.Valid(); got != tc.valid {
				t.Errorf("Valid: got %v, want %v", got, tc.valid)
			}
		})
	}
}

func TestCell_OverwritesInsteadOfQueueing(t *testing.T) {
	c := NewCell()
	if c.Latest() != nil {
		t.Fatal("empty cell should hold no frame")
	}

	for seq := uint64(1); seq <= 5; seq++ {
		c.Publish(testFrame(seq))
	}

	f, err := c.Next(context.Background(), 0)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.Seq != 5 {
		t.Errorf("Next returned seq %d, want newest 5", f.Seq)
	}
	if c.Published() != 5 {
		t.Errorf("Published: got %d, want 5", c.Published())
	}
}

func TestCell_NextWaitsForNewerFrame(t *testing.T) {
	c := NewCell()
	c.Publish(testFrame(1))

	got := make(chan *Frame, 1)
	go func() {
		f, _ := c.Next(context.Background(), 1)
		got <- f
	}()

	select {
	case <-got:
		t.Fatal("Next returned before a newer frame was published")
	case <-time.After(20 * time.Millisecond):
	}

	c.Publish(testFrame(2))

	select {
	case f := <-got:
		if f.Seq != 2 {
			t.Errorf("got seq %d, want 2", f.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not wake on publish")
	}
}

func TestCell_NextHonoursContext(t *testing.T) {
	c := NewCell()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Next(ctx, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next: got %v, want deadline exceeded", err)
	}
}

func TestCell_ConcurrentPublishAndRead(t *testing.T) {
	c := NewCell()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for seq := uint64(1); seq <= 500; seq++ {
			c.Publish(testFrame(seq))
		}
	}()

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for last < 500 {
				f, err := c.Next(ctx, last)
				if err != nil {
					return
				}
				if !f.Valid() {
					t.Error("reader observed an incomplete frame")
					return
				}
				if f.Seq <= last {
					t.Errorf("sequence went backwards: %d after %d", f.Seq, last)
					return
				}
				last = f.Seq
			}
		}()
	}

	wg.Wait()
}

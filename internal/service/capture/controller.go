package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/samber/lo"
)

// ErrMicrophoneUnavailable reports that the input device could not be
// acquired (missing, busy, or permission denied).
var ErrMicrophoneUnavailable = errors.New("microphone unavailable")

// Stream is a live audio input delivering raw chunks until stopped.
type Stream interface {
	// Chunks yields audio data in arrival order. The channel closes when
	// the stream is stopped or the device goes away.
	Chunks() <-chan []byte
	Stop() error
}

// Source acquires audio input streams from the host platform. Acquisition
// failures surface as ErrMicrophoneUnavailable.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Recording is the single artifact produced by one capture cycle.
type Recording struct {
	Data   []byte
	Format string
}

// Controller arbitrates the single microphone resource. It is a two-state
// machine, Idle and Armed; stray Begin/End calls from rapid press-and-hold
// gestures are absorbed as no-ops.
type Controller struct {
	format string

	mu     sync.Mutex
	source Source
	armed  bool
	stream Stream
	chunks [][]byte
	done   chan struct{}
}

// NewController creates an idle controller. Recordings are tagged with
// format (e.g. "webm"). Without an attached source every Begin fails with
// ErrMicrophoneUnavailable.
func NewController(format string) *Controller {
	return &Controller{format: format}
}

// SetSource attaches or detaches the input device. The session's voice
// channel attaches itself here when a client connects.
func (c *Controller) SetSource(source Source) {
	c.mu.Lock()
	c.source = source
	c.mu.Unlock()
}

// Begin transitions Idle -> Armed: acquires an input stream and starts
// accumulating chunks. Calling Begin while already armed is a no-op.
func (c *Controller) Begin(ctx context.Context) error {
	c.mu.Lock()
	if c.armed {
		c.mu.Unlock()
		return nil
	}
	source := c.source
	c.mu.Unlock()

	if source == nil {
		return ErrMicrophoneUnavailable
	}

	stream, err := source.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}

	c.mu.Lock()
	if c.armed {
		// Lost the race against a concurrent Begin; release the extra stream.
		c.mu.Unlock()
		_ = stream.Stop()
		return nil
	}
	c.armed = true
	c.stream = stream
	c.chunks = nil
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.accumulate(stream, done)
	return nil
}

// accumulate drains the stream into the chunk buffer until the stream closes.
func (c *Controller) accumulate(stream Stream, done chan struct{}) {
	defer close(done)
	for chunk := range stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		buf := make([]byte, len(chunk))
		copy(buf, chunk)

		c.mu.Lock()
		if c.stream == stream {
			c.chunks = append(c.chunks, buf)
		}
		c.mu.Unlock()
	}
}

// End transitions Armed -> Idle: stops the stream, concatenates the
// accumulated chunks in arrival order and returns the recording. Calling End
// while idle returns ok=false.
func (c *Controller) End() (Recording, bool) {
	c.mu.Lock()
	if !c.armed {
		c.mu.Unlock()
		return Recording{}, false
	}
	stream := c.stream
	done := c.done
	c.mu.Unlock()

	if err := stream.Stop(); err != nil {
		log.Printf("[capture] failed to stop input stream: %v", err)
	}
	// Wait for the accumulator to drain whatever the stream already delivered.
	<-done

	c.mu.Lock()
	chunks := c.chunks
	c.armed = false
	c.stream = nil
	c.chunks = nil
	c.done = nil
	c.mu.Unlock()

	return Recording{Data: lo.Flatten(chunks), Format: c.format}, true
}

// Armed reports whether a capture session is live.
func (c *Controller) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

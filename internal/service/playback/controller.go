package playback

import (
	"errors"
	"log"
	"sync"
)

// ErrNoPlayer reports that no playback device is attached to the session.
var ErrNoPlayer = errors.New("no playback device attached")

// Handle is one live clip being rendered by a Player.
type Handle interface {
	// Done is closed when the clip finishes naturally.
	Done() <-chan struct{}
	Stop() error
}

// Player renders audio clips. At most one clip is handed to it at a time;
// the controller stops the previous handle before starting the next. The id
// identifies the transcript message the clip belongs to.
type Player interface {
	Play(id, source string) (Handle, error)
}

// Controller enforces the one-clip-at-a-time playback invariant. Toggling
// the active clip stops it (pause semantics); toggling another clip switches
// to it. Natural end-of-clip clears the active id autonomously.
type Controller struct {
	mu       sync.Mutex
	player   Player
	activeID string
	handle   Handle

	onChange func()
}

// NewController creates an idle controller. Without an attached player every
// Toggle fails with ErrNoPlayer.
func NewController() *Controller {
	return &Controller{}
}

// SetPlayer attaches or detaches the playback device. Detaching stops any
// clip that is still playing.
func (c *Controller) SetPlayer(player Player) {
	c.mu.Lock()
	c.player = player
	stopped := player == nil && c.activeID != ""
	if stopped {
		c.stopLocked()
	}
	c.mu.Unlock()
	if stopped {
		c.notify()
	}
}

// SetOnChange registers a hook invoked after every transition, including the
// autonomous reset at end-of-clip, so observers can refresh their state.
func (c *Controller) SetOnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Toggle starts, switches or stops playback for the message id. Starting a
// new clip always stops the current one first.
func (c *Controller) Toggle(id, source string) error {
	c.mu.Lock()
	if c.player == nil {
		c.mu.Unlock()
		return ErrNoPlayer
	}

	if c.activeID == id {
		c.stopLocked()
		c.mu.Unlock()
		c.notify()
		return nil
	}

	c.stopLocked()
	handle, err := c.player.Play(id, source)
	if err != nil {
		c.mu.Unlock()
		c.notify()
		return err
	}
	c.activeID = id
	c.handle = handle
	c.mu.Unlock()

	go c.watch(id, handle)
	c.notify()
	return nil
}

// watch clears the active id once the clip ends on its own.
func (c *Controller) watch(id string, handle Handle) {
	<-handle.Done()

	c.mu.Lock()
	if c.activeID != id || c.handle != handle {
		// A switch or stop already superseded this clip.
		c.mu.Unlock()
		return
	}
	c.activeID = ""
	c.handle = nil
	c.mu.Unlock()
	c.notify()
}

// Stop unconditionally silences playback.
func (c *Controller) Stop() {
	c.mu.Lock()
	stopped := c.activeID != ""
	c.stopLocked()
	c.mu.Unlock()
	if stopped {
		c.notify()
	}
}

func (c *Controller) stopLocked() {
	if c.handle != nil {
		if err := c.handle.Stop(); err != nil {
			log.Printf("[playback] failed to stop clip %s: %v", c.activeID, err)
		}
	}
	c.activeID = ""
	c.handle = nil
}

// ActiveID returns the id of the playing message, or "" when idle.
func (c *Controller) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

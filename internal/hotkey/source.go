package hotkey

import (
	"context"
	"errors"
)

// Event is one raw key transition delivered by a Source.
type Event struct {
	Key     Key
	Pressed bool
}

// ErrNoDevices is returned by a Source that found nothing to listen on.
var ErrNoDevices = errors.New("no keyboard input devices found")

// Source delivers key events until ctx is canceled or the underlying device
// goes away, at which point the channel is closed.
type Source interface {
	Listen(ctx context.Context) (<-chan Event, error)
}

// ChanSource adapts an existing channel, mainly for tests and embedding.
type ChanSource struct {
	ch <-chan Event
}

func NewChanSource(ch <-chan Event) *ChanSource { return &ChanSource{ch: ch} }

func (s *ChanSource) Listen(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-s.ch:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Down and Up are shorthands for building events.
func Down(k Key) Event { return Event{Key: k, Pressed: true} }
func Up(k Key) Event   { return Event{Key: k, Pressed: false} }

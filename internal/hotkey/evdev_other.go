//go:build !linux

package hotkey

import (
	"context"
	"errors"
)

// EvdevSource is only available on Linux.
type EvdevSource struct {
	Devices []string
}

func DetectKeyboards() []string { return nil }

func (s *EvdevSource) Listen(context.Context) (<-chan Event, error) {
	return nil, errors.New("evdev keyboard source is only supported on linux")
}

//go:build linux

package hotkey

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	evdev "github.com/holoplot/go-evdev"
)

// evdevNames covers KEY_* codes whose lower-cased name is not already a key
// name or alias.
var evdevNames = map[string]Key{
	"LEFTCTRL": "ctrl_l", "RIGHTCTRL": "ctrl_r",
	"LEFTSHIFT": "shift_l", "RIGHTSHIFT": "shift_r",
	"LEFTALT": "alt_l", "RIGHTALT": "alt_r",
	"LEFTMETA": "cmd_l", "RIGHTMETA": "cmd_r",
	"MINUS": "-", "EQUAL": "=", "LEFTBRACE": "[", "RIGHTBRACE": "]",
	"SEMICOLON": ";", "APOSTROPHE": "'", "GRAVE": "`", "BACKSLASH": "\\",
	"COMMA": ",", "DOT": ".", "SLASH": "/", "KPASTERISK": "*", "KPPLUS": "+",
	"COMPOSE":      "menu",
	"MUTE":         "media_volume_mute",
	"VOLUMEDOWN":   "media_volume_down",
	"VOLUMEUP":     "media_volume_up",
	"NEXTSONG":     "media_next",
	"PLAYPAUSE":    "media_play_pause",
	"PREVIOUSSONG": "media_previous",
}

// keycodes maps the EV_KEY codes we can bind to raw key names. Sided
// modifiers keep their side; the matcher normalizes them.
var keycodes = buildKeycodes()

func buildKeycodes() map[evdev.EvCode]Key {
	out := make(map[evdev.EvCode]Key)
	for code, name := range evdev.KEYToString {
		base, ok := strings.CutPrefix(name, "KEY_")
		if !ok {
			continue
		}
		if k, ok := evdevNames[base]; ok {
			out[code] = k
			continue
		}
		k := Key(strings.ToLower(base))
		// KEY_OPTION and friends would otherwise alias onto a modifier
		if !known(k) || isModifier(Normalize(k)) {
			continue
		}
		out[code] = k
	}
	return out
}

// EvdevSource reads key events straight from /dev/input event devices without
// grabbing them. The daemon user needs read access, usually through
// membership in the "input" group.
type EvdevSource struct {
	Devices []string // explicit device paths; autodetected when empty
}

// DetectKeyboards lists the readable event devices that report letter and
// control keys.
func DetectKeyboards() []string {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil
	}
	var out []string
	for _, p := range paths {
		d, err := evdev.OpenWithFlags(p.Path, os.O_RDONLY)
		if err != nil {
			continue
		}
		if isKeyboard(d) {
			out = append(out, p.Path)
		}
		_ = d.Close()
	}
	return out
}

func isKeyboard(d *evdev.InputDevice) bool {
	if !slices.Contains(d.CapableTypes(), evdev.EV_KEY) {
		return false
	}
	codes := d.CapableEvents(evdev.EV_KEY)
	return slices.Contains(codes, evdev.KEY_A) && slices.Contains(codes, evdev.KEY_LEFTCTRL)
}

func (s *EvdevSource) Listen(ctx context.Context) (<-chan Event, error) {
	paths := s.Devices
	if len(paths) == 0 {
		paths = DetectKeyboards()
	}
	if len(paths) == 0 {
		return nil, ErrNoDevices
	}
	devs := make([]*evdev.InputDevice, 0, len(paths))
	var openErr error
	for _, p := range paths {
		d, err := evdev.OpenWithFlags(p, os.O_RDONLY)
		if err != nil {
			openErr = fmt.Errorf("open %s: %w", p, err)
			continue
		}
		// lets Close interrupt a pending ReadOne; no other device calls after this
		if err := d.NonBlock(); err != nil {
			_ = d.Close()
			openErr = fmt.Errorf("%s: set non-blocking: %w", p, err)
			continue
		}
		devs = append(devs, d)
	}
	if len(devs) == 0 {
		return nil, openErr
	}

	out := make(chan Event, 64)
	var wg sync.WaitGroup
	for _, d := range devs {
		wg.Add(1)
		go func(d *evdev.InputDevice) {
			defer wg.Done()
			readDevice(ctx, d, out)
		}(d)
	}
	go func() {
		<-ctx.Done()
		for _, d := range devs {
			_ = d.Close()
		}
	}()
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

type eventReader interface {
	ReadOne() (*evdev.InputEvent, error)
}

func readDevice(ctx context.Context, r eventReader, out chan<- Event) {
	for {
		ev, err := r.ReadOne()
		if err != nil {
			return
		}
		if ev.Type != evdev.EV_KEY {
			continue
		}
		k, ok := keycodes[ev.Code]
		if !ok {
			continue
		}
		// value 0 = release, 1 = press, 2 = auto-repeat
		e := Event{Key: k, Pressed: ev.Value != 0}
		select {
		case out <- e:
		case <-ctx.Done():
			return
		}
	}
}

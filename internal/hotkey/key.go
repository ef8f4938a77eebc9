package hotkey

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Key is a normalized key identifier: a special key name such as "ctrl" or
// "f5", or a single literal character such as "n".
type Key string

// Parse errors
var (
	ErrEmptyKey       = errors.New("empty key")
	ErrUnknownSpecial = errors.New("unknown special key")
	ErrEmptyChord     = errors.New("empty hotkey chord")
	ErrUnsupportedKey = errors.New("unsupported key")
)

// literals are the single characters a keyboard reports as their own key.
// Shifted symbols such as "?" are bound as the base key plus <shift>.
const literals = "abcdefghijklmnopqrstuvwxyz0123456789-=[];'`\\,./*+"

// special lists the canonical names accepted inside <...>.
var special = map[Key]struct{}{}

// aliases maps alternate and sided spellings to their canonical key. Left and
// right modifier variants collapse so that a binding on <ctrl> matches either.
var aliases = map[string]Key{
	"ctrl_l": "ctrl", "ctrl_r": "ctrl", "control": "ctrl", "lctrl": "ctrl", "rctrl": "ctrl",
	"alt_l": "alt", "alt_r": "alt", "option": "alt", "lalt": "alt", "ralt": "alt",
	"shift_l": "shift", "shift_r": "shift", "lshift": "shift", "rshift": "shift",
	"cmd_l": "cmd", "cmd_r": "cmd", "super": "cmd", "super_l": "cmd", "super_r": "cmd",
	"meta": "cmd", "win": "cmd", "command": "cmd",
	"return": "enter", "cr": "enter", "escape": "esc", "del": "delete", "ins": "insert",
	"bs": "backspace", "pgup": "page_up", "pageup": "page_up", "pgdn": "page_down",
	"pagedown": "page_down", "capslock": "caps_lock", "numlock": "num_lock",
	"scrolllock": "scroll_lock", "print": "print_screen", "sysrq": "print_screen",
}

func init() {
	names := []string{
		"alt", "backspace", "caps_lock", "cmd", "ctrl", "delete", "down", "end",
		"enter", "esc", "home", "insert", "left", "menu", "num_lock", "page_down", "page_up",
		"pause", "print_screen", "right", "scroll_lock", "shift", "space", "tab", "up",
		"media_play_pause", "media_next", "media_previous", "media_volume_mute",
		"media_volume_down", "media_volume_up",
	}
	for _, n := range names {
		special[Key(n)] = struct{}{}
	}
	for i := 1; i <= 24; i++ {
		special[Key(fmt.Sprintf("f%d", i))] = struct{}{}
	}
}

// SpecialKeys returns the sorted canonical special key names.
func SpecialKeys() []string {
	out := make([]string, 0, len(special))
	for k := range special {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// known reports whether k, once normalized, is a key a binding may use.
func known(k Key) bool {
	n := Normalize(k)
	if _, ok := special[n]; ok {
		return true
	}
	return len(n) == 1 && strings.Contains(literals, string(n))
}

func isModifier(k Key) bool {
	switch k {
	case "ctrl", "alt", "shift", "cmd":
		return true
	}
	return false
}

// Normalize maps a raw key as delivered by a source (sided modifiers, upper
// case letters, a literal space) to its canonical identity.
func Normalize(k Key) Key {
	s := string(k)
	if utf8.RuneCountInString(s) == 1 {
		r, _ := utf8.DecodeRuneInString(s)
		if r == ' ' {
			return "space"
		}
		return Key(string(unicode.ToLower(r)))
	}
	l := strings.ToLower(s)
	if a, ok := aliases[l]; ok {
		return a
	}
	return Key(l)
}

// ParseKey parses one configured chord token. Tokens are either "<name>" for
// special keys, a bare special name, or a single literal character.
func ParseKey(tok string) (Key, error) {
	t := strings.TrimSpace(tok)
	if t == "" {
		if tok != "" {
			return "space", nil
		}
		return "", ErrEmptyKey
	}
	if len(t) > 2 && strings.HasPrefix(t, "<") && strings.HasSuffix(t, ">") {
		return parseSpecial(t[1 : len(t)-1])
	}
	if utf8.RuneCountInString(t) == 1 {
		k := Normalize(Key(t))
		if !known(k) {
			return "", fmt.Errorf("%w %q: bind the unshifted key together with <shift>", ErrUnsupportedKey, t)
		}
		return k, nil
	}
	return parseSpecial(t)
}

func parseSpecial(name string) (Key, error) {
	k := Normalize(Key(strings.TrimSpace(name)))
	if _, ok := special[k]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownSpecial, name)
	}
	return k, nil
}

// ParseChord parses an ordered list of tokens into a de-duplicated chord.
func ParseChord(tokens []string) ([]Key, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyChord
	}
	seen := make(map[Key]struct{}, len(tokens))
	chord := make([]Key, 0, len(tokens))
	for _, tok := range tokens {
		k, err := ParseKey(tok)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		chord = append(chord, k)
	}
	return chord, nil
}

// SplitChord splits the string form "<ctrl>+<alt>+n" into tokens. A "+" that
// follows another "+" is taken as the literal plus key.
func SplitChord(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '+' && cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// FormatChord renders a chord in the "<ctrl>+n" form.
func FormatChord(chord []Key) string {
	parts := make([]string, len(chord))
	for i, k := range chord {
		if utf8.RuneCountInString(string(k)) == 1 {
			parts[i] = string(k)
		} else {
			parts[i] = "<" + string(k) + ">"
		}
	}
	return strings.Join(parts, "+")
}

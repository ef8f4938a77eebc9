package env

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestComposePrecedenceAndExpansion(t *testing.T) {
	e := New()
	e.env = parse([]string{"PATH=/bin", "FOO=base", "=broken", "noequals"})
	e.SetAll([]string{"FOO=global", "CHAIN=${FOO}-x"})
	got := e.Compose(map[string]string{"CHAIN": "${PATH}:mod", "LOCAL": "1"})
	if got["FOO"] != "global" {
		t.Fatalf("global must override base, got %q", got["FOO"])
	}
	if got["CHAIN"] != "/bin:mod" {
		t.Fatalf("module override must win and expand, got %q", got["CHAIN"])
	}
	if got["LOCAL"] != "1" || got["PATH"] != "/bin" {
		t.Fatalf("unexpected env %v", got)
	}
	if _, ok := got[""]; ok {
		t.Fatalf("empty key leaked")
	}
}

func TestExpansionIsSinglePassAndStable(t *testing.T) {
	e := New()
	e.env = parse(nil)
	e.SetAll([]string{"A=${B}", "B=x", "C=${A}-${B}-${MISSING}"})
	for i := 0; i < 100; i++ {
		got := e.Compose(nil)
		if got["C"] != "${B}-x-${MISSING}" {
			t.Fatalf("run %d: C = %q", i, got["C"])
		}
		if got["A"] != "x" {
			t.Fatalf("run %d: A = %q", i, got["A"])
		}
	}
}

func TestListSorted(t *testing.T) {
	l := Var{"B": "2", "A": "1"}.List()
	if strings.Join(l, ",") != "A=1,B=2" {
		t.Fatalf("got %v", l)
	}
}

func TestWithGUIFindsXauthority(t *testing.T) {
	home := t.TempDir()
	xa := filepath.Join(home, ".Xauthority")
	if err := os.WriteFile(xa, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	v := Var{"HOME": home}
	if warns := v.WithGUI(); len(warns) != 0 {
		t.Fatalf("unexpected warnings %v", warns)
	}
	if v["DISPLAY"] != DefaultDisplay || v["XAUTHORITY"] != xa {
		t.Fatalf("unexpected gui env %v", v)
	}
}

func TestWithGUIKeepsExplicitValues(t *testing.T) {
	v := Var{"DISPLAY": ":1", "XAUTHORITY": "/tmp/xa"}
	if warns := v.WithGUI(); len(warns) != 0 {
		t.Fatalf("unexpected warnings %v", warns)
	}
	if v["DISPLAY"] != ":1" || v["XAUTHORITY"] != "/tmp/xa" {
		t.Fatalf("explicit values overwritten: %v", v)
	}
}

func TestWithGUIMissingXauthorityWarns(t *testing.T) {
	v := Var{"HOME": t.TempDir()}
	warns := v.WithGUI()
	if len(warns) != 1 || !strings.Contains(warns[0], ".Xauthority") {
		t.Fatalf("expected a single .Xauthority warning, got %v", warns)
	}
	if v["DISPLAY"] != DefaultDisplay {
		t.Fatalf("DISPLAY must still be set")
	}
	if _, ok := v["XAUTHORITY"]; ok {
		t.Fatalf("XAUTHORITY must not be set")
	}
}

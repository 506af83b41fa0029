package style

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMerge(t *testing.T) {
	partial := Config{DoctorName: "Dr. Priya", Specialty: "  "}
	got := partial.Merge(Defaults())

	if got.DoctorName != "Dr. Priya" {
		t.Errorf("DoctorName = %q, want Dr. Priya", got.DoctorName)
	}
	if got.Specialty != DefaultSpecialty {
		t.Errorf("Specialty = %q, want default for whitespace-only input", got.Specialty)
	}
	if got.ExampleCase != DefaultExampleCase {
		t.Error("ExampleCase should fall back to the default")
	}
}

func TestBlank(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{"defaults", Defaults(), nil},
		{"empty", Config{}, []string{"doctor_name", "specialty", "format_instructions", "abbreviations", "example_case"}},
		{"one_missing", Config{DoctorName: "a", Specialty: "b", FormatInstructions: "c", Abbreviations: "d"}, []string{"example_case"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Blank(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Blank() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("partial_profile", func(t *testing.T) {
		path := filepath.Join(dir, "style.yaml")
		writeFile(t, path, "doctor_name: Dr. Kumar\nspecialty: Cardiology\n")

		c, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile: %v", err)
		}
		if c.DoctorName != "Dr. Kumar" || c.Specialty != "Cardiology" {
			t.Errorf("got %q/%q, want Dr. Kumar/Cardiology", c.DoctorName, c.Specialty)
		}
		if c.Abbreviations != DefaultAbbreviations {
			t.Errorf("Abbreviations = %q, want default", c.Abbreviations)
		}
	})

	t.Run("multiline_block", func(t *testing.T) {
		path := filepath.Join(dir, "block.yaml")
		writeFile(t, path, "format_instructions: |\n  1. C/O\n  2. Plan\n")

		c, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile: %v", err)
		}
		if c.FormatInstructions != "1. C/O\n2. Plan\n" {
			t.Errorf("FormatInstructions = %q", c.FormatInstructions)
		}
	})

	t.Run("unknown_field_rejected", func(t *testing.T) {
		path := filepath.Join(dir, "typo.yaml")
		writeFile(t, path, "doctor_nmae: Dr. Typo\n")
		if _, err := LoadFile(path); err == nil {
			t.Error("expected error for unknown field")
		}
	})

	t.Run("missing_file", func(t *testing.T) {
		if _, err := LoadFile(filepath.Join(dir, "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestStore(t *testing.T) {
	s := NewStore()
	if s.Source() != "builtin" {
		t.Errorf("Source = %q, want builtin", s.Source())
	}
	if s.Defaults() != Defaults() {
		t.Error("new store should hold the built-in defaults")
	}

	s.Replace(Config{DoctorName: "x"}, "test")
	if s.Defaults().DoctorName != "x" || s.Source() != "test" {
		t.Errorf("after Replace: %+v from %q", s.Defaults(), s.Source())
	}

	// Mutating the returned copy must not change the store.
	d := s.Defaults()
	d.DoctorName = "mutated"
	if s.Defaults().DoctorName != "x" {
		t.Error("Defaults() leaked a reference to stored profile")
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "style.yaml")
	writeFile(t, path, "doctor_name: Dr. First\n")

	store := NewStore()
	w := NewWatcher(store, path, zerolog.Nop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if got := store.Defaults().DoctorName; got != "Dr. First" {
		t.Fatalf("initial DoctorName = %q, want Dr. First", got)
	}

	writeFile(t, path, "doctor_name: Dr. Second\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if store.Defaults().DoctorName == "Dr. Second" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("DoctorName = %q after rewrite, want Dr. Second", store.Defaults().DoctorName)
}

func TestWatcherKeepsProfileOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "style.yaml")
	writeFile(t, path, "doctor_name: Dr. Stable\n")

	store := NewStore()
	w := NewWatcher(store, path, zerolog.Nop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	writeFile(t, path, "doctor_name: [unterminated\n")
	time.Sleep(reloadDebounce + 500*time.Millisecond)

	if got := store.Defaults().DoctorName; got != "Dr. Stable" {
		t.Errorf("DoctorName = %q, want previous profile kept", got)
	}
}

func TestWatcherStartMissingFile(t *testing.T) {
	w := NewWatcher(NewStore(), filepath.Join(t.TempDir(), "missing.yaml"), zerolog.Nop())
	if err := w.Start(); err == nil {
		w.Stop()
		t.Fatal("expected error when style file is missing")
	}
	w.Stop() // no-op when never started
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

package state

import (
	"bytes"
	"encoding/json"
	"testing"
)

// TestDefaultState verifies the hard-coded values a fresh hub instance
// starts from.
func TestDefaultState(t *testing.T) {
	s := DefaultState()

	if s.Key != "C" {
		t.Errorf("Expected default key C, got %q", s.Key)
	}
	if s.Scale != "major" {
		t.Errorf("Expected default scale major, got %q", s.Scale)
	}
	if s.Chord != "I" {
		t.Errorf("Expected default chord I, got %q", s.Chord)
	}
	if s.Tempo != 99 {
		t.Errorf("Expected default tempo 99, got %d", s.Tempo)
	}
	if s.CurrentStep != -1 {
		t.Errorf("Expected current step -1 while not running, got %d", s.CurrentStep)
	}
	if len(s.MusicGrid) != GridSize {
		t.Fatalf("Expected %d grid squares, got %d", GridSize, len(s.MusicGrid))
	}
	if s.Evolution.MaxSteps != 16 {
		t.Errorf("Expected evolution maxSteps 16, got %d", s.Evolution.MaxSteps)
	}

	for i, square := range s.MusicGrid {
		if square.Index != i {
			t.Fatalf("Grid square %d has index %d", i, square.Index)
		}
		if square.Active {
			t.Fatalf("Grid square %d should start inactive", i)
		}
		if square.Waveform != WaveSine {
			t.Fatalf("Grid square %d should default to sine, got %q", i, square.Waveform)
		}
	}
}

// TestSnapshotMatchesDefaults verifies that a fresh store's snapshot decodes
// back to exactly the default state.
func TestSnapshotMatchesDefaults(t *testing.T) {
	store := NewStore()

	var decoded ApplicationState
	if err := json.Unmarshal(store.Snapshot(), &decoded); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}

	defaults := DefaultState()
	if decoded.Key != defaults.Key || decoded.Tempo != defaults.Tempo {
		t.Errorf("Snapshot diverges from defaults: %+v", decoded)
	}
	if len(decoded.MusicGrid) != GridSize {
		t.Errorf("Snapshot grid has %d squares", len(decoded.MusicGrid))
	}
	if decoded.Evolution != defaults.Evolution {
		t.Errorf("Snapshot evolution %+v != defaults %+v", decoded.Evolution, defaults.Evolution)
	}
}

// TestMergeShallowOverwrite verifies that keys present in a patch replace the
// current value exactly and keys absent from the patch are untouched.
func TestMergeShallowOverwrite(t *testing.T) {
	store := NewStore()

	snapshot, err := store.Merge([]byte(`{"tempo":120}`))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	var decoded ApplicationState
	if err := json.Unmarshal(snapshot, &decoded); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if decoded.Tempo != 120 {
		t.Errorf("Expected tempo 120 after merge, got %d", decoded.Tempo)
	}
	if decoded.Key != "C" || decoded.Scale != "major" {
		t.Errorf("Keys absent from the patch changed: key=%q scale=%q", decoded.Key, decoded.Scale)
	}
	if len(decoded.MusicGrid) != GridSize {
		t.Errorf("Grid changed by unrelated patch: %d squares", len(decoded.MusicGrid))
	}
}

// TestMergeReplacesNestedWholesale verifies there is no recursive merge: a
// patch carrying a partial musicGrid or evolution replaces the whole value,
// silently dropping the elements it omits.
func TestMergeReplacesNestedWholesale(t *testing.T) {
	store := NewStore()

	snapshot, err := store.Merge([]byte(`{"musicGrid":[{"index":0,"active":true}]}`))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	var decoded ApplicationState
	if err := json.Unmarshal(snapshot, &decoded); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if len(decoded.MusicGrid) != 1 {
		t.Fatalf("Expected the partial grid to replace all %d squares, got %d", GridSize, len(decoded.MusicGrid))
	}
	if !decoded.MusicGrid[0].Active {
		t.Errorf("Replacement square lost its value")
	}

	snapshot, err = store.Merge([]byte(`{"evolution":{"isEvolving":true}}`))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	decoded = ApplicationState{}
	if err := json.Unmarshal(snapshot, &decoded); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if !decoded.Evolution.IsEvolving {
		t.Errorf("Evolution patch not applied")
	}
	if decoded.Evolution.MaxSteps != 0 {
		t.Errorf("Expected wholesale replacement to drop maxSteps, got %d", decoded.Evolution.MaxSteps)
	}
}

// TestMergeIsIdempotent verifies that applying the same patch twice yields
// the same state as applying it once.
func TestMergeIsIdempotent(t *testing.T) {
	store := NewStore()
	patch := []byte(`{"tempo":140,"key":"F#"}`)

	first, err := store.Merge(patch)
	if err != nil {
		t.Fatalf("First merge failed: %v", err)
	}
	second, err := store.Merge(patch)
	if err != nil {
		t.Fatalf("Second merge failed: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("Repeated merge diverged:\n%s\n%s", first, second)
	}
}

// TestMergeAcceptsArbitraryKeys verifies that unknown keys are merged and
// propagated verbatim with no schema validation.
func TestMergeAcceptsArbitraryKeys(t *testing.T) {
	store := NewStore()

	snapshot, err := store.Merge([]byte(`{"somethingNew":{"nested":[1,2,3]},"tempo":"not-a-number"}`))
	if err != nil {
		t.Fatalf("Merge rejected arbitrary keys: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(snapshot, &raw); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if string(raw["somethingNew"]) != `{"nested":[1,2,3]}` {
		t.Errorf("Unknown key not carried verbatim: %s", raw["somethingNew"])
	}
	if string(raw["tempo"]) != `"not-a-number"` {
		t.Errorf("Type-mismatched value not carried verbatim: %s", raw["tempo"])
	}
}

// TestMergeRejectsNonObject verifies that the only rejected patch is one that
// is not a JSON object, and that the state stays unchanged in that case.
func TestMergeRejectsNonObject(t *testing.T) {
	store := NewStore()
	before := store.Snapshot()

	if _, err := store.Merge([]byte(`[1,2,3]`)); err == nil {
		t.Error("Expected error merging a JSON array")
	}
	if _, err := store.Merge([]byte(`not json`)); err == nil {
		t.Error("Expected error merging invalid JSON")
	}

	if !bytes.Equal(before, store.Snapshot()) {
		t.Error("State changed after rejected merges")
	}
}

// TestNewStoreFrom verifies seeding from a durable snapshot.
func TestNewStoreFrom(t *testing.T) {
	seeded, err := NewStoreFrom([]byte(`{"key":"D","tempo":80}`))
	if err != nil {
		t.Fatalf("NewStoreFrom failed: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(seeded.Snapshot(), &decoded); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if string(decoded["key"]) != `"D"` {
		t.Errorf("Seed value lost: %s", decoded["key"])
	}

	if _, err := NewStoreFrom([]byte(`"just a string"`)); err == nil {
		t.Error("Expected error seeding from a non-object snapshot")
	}
}

package session

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xelaj/errs"
)

func TestFileLoaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.gob")
	loader := NewFromFile(path)

	want := &State{
		WorkingDC: 2,
		OurID:     12345,
		Pts:       10,
		Qts:       20,
		Seq:       30,
		Date:      1700000000,
		DCs: []DCState{
			{
				ID:              2,
				AuthKey:         bytes256(),
				AuthKeyID:       999,
				ServerSalt:      -42,
				ServerTimeDelta: 5,
			},
		},
	}

	if err := loader.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Load() = %+v, want %+v", got, want)
	}
}

func TestFileLoaderLoadMissingFileReturnsNotFound(t *testing.T) {
	loader := NewFromFile(filepath.Join(t.TempDir(), "missing.gob"))
	_, err := loader.Load()
	if err == nil {
		t.Fatalf("expected an error loading a missing session file")
	}
	if !errs.IsNotFound(err) {
		t.Fatalf("expected a NotFound error, got %v", err)
	}
}

func TestFileLoaderSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.gob")
	loader := NewFromFile(path)

	if err := loader.Save(&State{WorkingDC: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := loader.Save(&State{WorkingDC: 4}); err != nil {
		t.Fatalf("Save (overwrite): %v", err)
	}

	got, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.WorkingDC != 4 {
		t.Fatalf("WorkingDC = %d, want 4 (overwrite should replace, not merge)", got.WorkingDC)
	}
}

func bytes256() []byte {
	b := make([]byte, 256)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

package cardlog

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppendAndRead(t *testing.T) {
	l, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	first := Sighting{Reader: "ACS ACR122U 00 00", ATR: "3b8f80", Kind: "card-inserted", Seen: time.Now().UTC().Round(time.Second)}
	second := Sighting{Reader: "ACS ACR122U 00 00", Kind: "card-removed", Seen: time.Now().UTC().Round(time.Second)}

	if err := l.Append(first); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(second); err != nil {
		t.Fatal(err)
	}

	all, err := l.All()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []Sighting{first, second}, all)

	recent, err := l.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []Sighting{second}, recent)
}

func TestRecentNewestFirst(t *testing.T) {
	l, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	for i := 0; i < 5; i++ {
		err := l.Append(Sighting{Reader: fmt.Sprintf("reader %d", i), Kind: "card-inserted", Seen: time.Now()})
		if err != nil {
			t.Fatal(err)
		}
	}

	recent, err := l.Recent(3)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, recent, 3)
	assert.Equal(t, "reader 4", recent[0].Reader)
	assert.Equal(t, "reader 2", recent[2].Reader)
}

func TestSequenceSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sightings.db")

	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Append(Sighting{Reader: "a", Kind: "card-inserted", Seen: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if err := l.Append(Sighting{Reader: "b", Kind: "card-inserted", Seen: time.Now()}); err != nil {
		t.Fatal(err)
	}

	all, err := l.All()
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Reader)
	assert.Equal(t, "b", all[1].Reader)
}

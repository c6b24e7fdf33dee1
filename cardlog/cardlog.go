// Package cardlog keeps an append-only log of card sightings on disk, so a
// machine's reader history can be inspected after the fact.
package cardlog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/buntdb"
)

// Sighting is one recorded card observation.
type Sighting struct {
	Reader string    `json:"reader"`
	ATR    string    `json:"atr,omitempty"`
	Kind   string    `json:"kind"`
	Seen   time.Time `json:"seen"`
}

// Log is a buntdb-backed sighting log. Keys are zero-padded sequence
// numbers, so lexical key order is append order.
type Log struct {
	instance *buntdb.DB
	seq      uint64
}

const keyFormat = "sighting:%012d"

// Open opens (or creates) the log at path. Use ":memory:" for a throwaway
// log.
func Open(path string) (*Log, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	l := &Log{instance: db}
	err = db.View(func(tx *buntdb.Tx) error {
		return tx.Descend("", func(key, _ string) bool {
			fmt.Sscanf(key, "sighting:%d", &l.seq)
			return false
		})
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) Close() error {
	return l.instance.Close()
}

// Append records a sighting at the end of the log.
func (l *Log) Append(s Sighting) error {
	return l.instance.Update(func(tx *buntdb.Tx) error {
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		l.seq++
		if _, _, err := tx.Set(fmt.Sprintf(keyFormat, l.seq), string(data), nil); err != nil {
			return err
		}
		return nil
	})
}

// Recent returns up to n sightings, newest first.
func (l *Log) Recent(n int) ([]Sighting, error) {
	var out []Sighting
	err := l.instance.View(func(tx *buntdb.Tx) error {
		var inner error
		tx.Descend("", func(_, value string) bool {
			if n > 0 && len(out) >= n {
				return false
			}
			var s Sighting
			if inner = json.Unmarshal([]byte(value), &s); inner != nil {
				return false
			}
			out = append(out, s)
			return true
		})
		return inner
	})
	return out, err
}

// All returns every sighting in append order.
func (l *Log) All() ([]Sighting, error) {
	var out []Sighting
	err := l.instance.View(func(tx *buntdb.Tx) error {
		var inner error
		tx.Ascend("", func(_, value string) bool {
			var s Sighting
			if inner = json.Unmarshal([]byte(value), &s); inner != nil {
				return false
			}
			out = append(out, s)
			return true
		})
		return inner
	})
	return out, err
}

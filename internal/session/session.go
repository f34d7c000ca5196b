// Package session persists the state a DC needs to skip a fresh DH
// handshake across restarts: the long-lived auth_key material, the
// temporary PFS key, salts, time deltas, and the global update
// cursors (spec §6 "Persisted state layout"). The teacher's
// mtproto.go depends on this package (session.SessionLoader,
// session.NewFromFile) but the retrieval pack did not include a copy,
// so it is reconstructed to the documented layout.
package session

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
	"github.com/xelaj/errs"
)

// DCState is the persisted half of a DC (see dc.go for the live,
// in-memory half with its state machine and query queues).
type DCState struct {
	ID              int
	AuthKey         []byte
	AuthKeyID       int64
	TempAuthKey     []byte
	TempAuthKeyID   int64
	TempKeyExpires  int64
	ServerSalt      int64
	ServerTimeDelta int64
	Options         []DCOption
}

type DCOption struct {
	IPv6    bool
	MediaOnly bool
	IPAddress string
	Port      int32
}

// State is the full persisted snapshot: per-DC material plus the
// global update cursors and identity.
type State struct {
	DCs       []DCState
	WorkingDC int
	OurID     int64
	Pts       int32
	Qts       int32
	Seq       int32
	Date      int32
}

// SessionLoader abstracts where the snapshot lives — a file by
// default, but an embedding application may swap in its own store
// (database row, keychain entry, ...).
type SessionLoader interface {
	Load() (*State, error)
	Save(*State) error
}

type fileLoader struct {
	path string
}

// NewFromFile returns a SessionLoader backed by a single gob-encoded
// file, matching the teacher's AuthKeyFile-based default.
func NewFromFile(path string) SessionLoader {
	return &fileLoader{path: path}
}

func (f *fileLoader) Load() (*State, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound("session file", f.path)
		}
		return nil, errors.Wrap(err, "opening session file")
	}
	defer file.Close()

	var s State
	if err := gob.NewDecoder(file).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "decoding session file")
	}
	return &s, nil
}

func (f *fileLoader) Save(s *State) error {
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrap(err, "opening session file for write")
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(s); err != nil {
		return errors.Wrap(err, "encoding session file")
	}
	return nil
}

package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/goccy/go-json"

	"github.com/jinmel/safe-relay/safe"
)

var ErrDeployedHandle = errors.New("only predicted accounts are stored")

var handlePrefix = []byte("handle/")

// HandleStore keeps predicted account handles across restarts so the salt
// that produced an address is not lost before deployment.
type HandleStore struct {
	log log.Logger
	db  *pebble.DB
}

// Open opens the store in dir, or an in-memory store when dir is empty.
func Open(log log.Logger, dir string) (*HandleStore, error) {
	opts := &pebble.Options{}
	if dir == "" {
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open handle store: %w", err)
	}
	log.Info("Opened handle store", "dir", dir, "in_memory", dir == "")
	return &HandleStore{log: log, db: db}, nil
}

func chainPrefix(chainID uint64) []byte {
	key := make([]byte, 0, len(handlePrefix)+8)
	key = append(key, handlePrefix...)
	return binary.BigEndian.AppendUint64(key, chainID)
}

func handleKey(chainID uint64, addr common.Address) []byte {
	return append(chainPrefix(chainID), addr.Bytes()...)
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *HandleStore) Put(h safe.AccountHandle) error {
	if h.Deployed || h.Salt == nil {
		return safe.NewError(safe.KindConfiguration, "store handle", fmt.Errorf("%w: %s", ErrDeployedHandle, h))
	}
	value, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to encode handle: %w", err)
	}
	if err := s.db.Set(handleKey(h.ChainID, h.Address), value, pebble.Sync); err != nil {
		return fmt.Errorf("failed to store handle: %w", err)
	}
	s.log.Debug("Stored predicted account", "account", h.Address, "chain", h.ChainID, "salt", h.Salt)
	return nil
}

func (s *HandleStore) Get(chainID uint64, addr common.Address) (safe.AccountHandle, bool, error) {
	value, closer, err := s.db.Get(handleKey(chainID, addr))
	if errors.Is(err, pebble.ErrNotFound) {
		return safe.AccountHandle{}, false, nil
	}
	if err != nil {
		return safe.AccountHandle{}, false, fmt.Errorf("failed to read handle: %w", err)
	}
	defer closer.Close()

	var h safe.AccountHandle
	if err := json.Unmarshal(value, &h); err != nil {
		return safe.AccountHandle{}, false, fmt.Errorf("failed to decode handle %s: %w", addr, err)
	}
	return h, true, nil
}

// List returns the stored handles of a chain ordered by address.
func (s *HandleStore) List(chainID uint64) (safe.Accounts, error) {
	prefix := chainPrefix(chainID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, fmt.Errorf("failed to list handles: %w", err)
	}
	defer iter.Close()

	out := safe.Accounts{}
	for iter.First(); iter.Valid(); iter.Next() {
		var h safe.AccountHandle
		if err := json.Unmarshal(iter.Value(), &h); err != nil {
			return nil, fmt.Errorf("failed to decode handle at %x: %w", iter.Key(), err)
		}
		out = append(out, h)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to list handles: %w", err)
	}
	return out, nil
}

func (s *HandleStore) Delete(chainID uint64, addr common.Address) error {
	if err := s.db.Delete(handleKey(chainID, addr), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete handle: %w", err)
	}
	return nil
}

func (s *HandleStore) Close() error {
	return s.db.Close()
}

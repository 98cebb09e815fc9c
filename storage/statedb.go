package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/crypto"
)

func zeroWei() *uint256.Int { return uint256.NewInt(0) }

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it.  All prefix constants must be declared
// via this function; manually editing statePrefixes is not required.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated automatically by registerPrefix() below.
// ComputeRoot() iterates these prefixes to build the full world-state view.
var statePrefixes []string

var (
	prefixAccount  = registerPrefix("acct:")
	prefixPosition = registerPrefix("pos:")
	prefixToken    = registerPrefix("tok:")
	prefixGlobal   = registerPrefix("global:")
)

// Singleton keys under prefixGlobal.
var (
	keyPlatform  = prefixGlobal + "platform"
	keyTokenMeta = prefixGlobal + "tokenmeta"
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) putJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// ---- Account ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	data, err := s.get(prefixAccount + address)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address, Balance: zeroWei()}, nil
	}
	if err != nil {
		return nil, err
	}
	var acc core.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, err
	}
	if acc.Balance == nil {
		acc.Balance = zeroWei()
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.putJSON(prefixAccount+acc.Address, acc)
}

// ---- Platform singleton ----

func (s *StateDB) GetPlatform() (*core.Platform, error) {
	data, err := s.get(keyPlatform)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("platform not initialised: %w", err)
	}
	if err != nil {
		return nil, err
	}
	var p core.Platform
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *StateDB) SetPlatform(p *core.Platform) error {
	return s.putJSON(keyPlatform, p)
}

// ---- Position ----

// GetPosition returns the stored position, or nil (no error) when the user
// has never touched the platform.
func (s *StateDB) GetPosition(address string) (*core.Position, error) {
	data, err := s.get(prefixPosition + address)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pos core.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return nil, err
	}
	return &pos, nil
}

func (s *StateDB) SetPosition(pos *core.Position) error {
	return s.putJSON(prefixPosition+pos.Address, pos)
}

// ---- Token ledger ----

func (s *StateDB) GetTokenAccount(address string) (*core.TokenAccount, error) {
	data, err := s.get(prefixToken + address)
	if errors.Is(err, core.ErrNotFound) {
		return &core.TokenAccount{Address: address, Balance: zeroWei()}, nil
	}
	if err != nil {
		return nil, err
	}
	var acc core.TokenAccount
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, err
	}
	if acc.Balance == nil {
		acc.Balance = zeroWei()
	}
	return &acc, nil
}

func (s *StateDB) SetTokenAccount(acc *core.TokenAccount) error {
	return s.putJSON(prefixToken+acc.Address, acc)
}

func (s *StateDB) GetTokenMeta() (*core.TokenMeta, error) {
	data, err := s.get(keyTokenMeta)
	if errors.Is(err, core.ErrNotFound) {
		return &core.TokenMeta{TotalSupply: zeroWei()}, nil
	}
	if err != nil {
		return nil, err
	}
	var m core.TokenMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.TotalSupply == nil {
		m.TotalSupply = zeroWei()
	}
	return &m, nil
}

func (s *StateDB) SetTokenMeta(m *core.TokenMeta) error {
	return s.putJSON(keyTokenMeta, m)
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot.
// The snapshot maps are deep-copied so that subsequent writes cannot corrupt them.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		dirty[k] = cp
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}

	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of the complete world state.
// It merges all persisted state entries (scanned from DB by the known state
// prefixes) with the current write buffer, then hashes the sorted key-value
// pairs using length-prefix encoding.  It does NOT flush or modify state,
// so it is safe to call before signing a block.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			k := string(it.Key())
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[k] = v
		}
		it.Release()
	}

	// Overlay the uncommitted write buffer, then drop deleted keys.
	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Length-prefix encode each key-value pair and hash.
	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		kb := []byte(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kb)))
		buf.Write(lenBuf[:])
		buf.Write(kb)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// WriteBatch and then clears it. Call ComputeRoot() before signing the block,
// then call Commit() after the block is safely stored.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}

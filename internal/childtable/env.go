package childtable

import (
	"errors"

	"github.com/ossexec/ltxd/internal/constants"
)

// ErrEnvOverflow is returned when an env store would exceed its fixed
// capacity (entry count, key bytes, or value bytes) — fatal per §7 class 3.
var ErrEnvOverflow = errors.New("childtable: environment store overflow")

// EnvStore is a slot's packed env key/value store: two NUL-free byte arenas
// with parallel offset tables, per §3's ChildSlot data model. Entry i
// occupies keys[keyOff[i]:keyOff[i+1]] and vals[valOff[i]:valOff[i+1]].
//
// The original C source tracks liveness with a zero sentinel at
// env_keys_off[i+1]; that collides with a legitimately empty first entry.
// This store instead keeps an explicit count, which the spec's §9 Open
// Question already invites fixing rather than porting verbatim.
type EnvStore struct {
	count  int
	keys   []byte
	vals   []byte
	keyOff [constants.MaxEnvEntries + 1]int32
	valOff [constants.MaxEnvEntries + 1]int32
}

// NewEnvStore allocates an empty store with the protocol's fixed capacities.
func NewEnvStore() *EnvStore {
	return &EnvStore{
		keys: make([]byte, 0, constants.EnvKeyStoreCap),
		vals: make([]byte, 0, constants.EnvValStoreCap),
	}
}

// Lookup returns the most recently set value for key, if any.
func (s *EnvStore) Lookup(key string) (string, bool) {
	if i, ok := s.find(key); ok {
		return string(s.vals[s.valOff[i]:s.valOff[i+1]]), true
	}
	return "", false
}

// Entries returns the store's live key/value pairs in insertion order, for
// installing into a child's environment at exec time.
func (s *EnvStore) Entries() []string {
	out := make([]string, 0, s.count)
	for i := 0; i < s.count; i++ {
		k := s.keys[s.keyOff[i]:s.keyOff[i+1]]
		v := s.vals[s.valOff[i]:s.valOff[i+1]]
		out = append(out, string(k)+"="+string(v))
	}
	return out
}

func (s *EnvStore) find(key string) (int, bool) {
	for i := 0; i < s.count; i++ {
		if string(s.keys[s.keyOff[i]:s.keyOff[i+1]]) == key {
			return i, true
		}
	}
	return 0, false
}

// Set implements the env append policy of §4.D: reuse an existing entry for
// key if present, shifting the value store to keep it packed when the new
// value's length differs; otherwise append a new entry. Overflow of either
// store, or of the entry count, is fatal.
func (s *EnvStore) Set(key, value string) error {
	if i, ok := s.find(key); ok {
		return s.replaceValue(i, []byte(value))
	}
	return s.appendEntry([]byte(key), []byte(value))
}

func (s *EnvStore) appendEntry(key, value []byte) error {
	if s.count >= constants.MaxEnvEntries {
		return ErrEnvOverflow
	}
	if len(s.keys)+len(key) > constants.EnvKeyStoreCap {
		return ErrEnvOverflow
	}
	if len(s.vals)+len(value) > constants.EnvValStoreCap {
		return ErrEnvOverflow
	}
	s.keys = append(s.keys, key...)
	s.vals = append(s.vals, value...)
	s.count++
	s.keyOff[s.count] = int32(len(s.keys))
	s.valOff[s.count] = int32(len(s.vals))
	return nil
}

// replaceValue rewrites the value at entry i, shifting the tail of the
// value store when the new value's length differs from the old one. The
// shift length is derived from oldLen vs newLen against the store's current
// high-water mark (len(s.vals)), not from the original's nxt_off/new_off
// arithmetic — see §9's Open Question.
func (s *EnvStore) replaceValue(i int, newValue []byte) error {
	oldStart, oldEnd := s.valOff[i], s.valOff[i+1]
	oldLen := int(oldEnd - oldStart)
	delta := len(newValue) - oldLen
	if delta == 0 {
		copy(s.vals[oldStart:oldEnd], newValue)
		return nil
	}
	if len(s.vals)+delta > constants.EnvValStoreCap {
		return ErrEnvOverflow
	}

	tail := append([]byte(nil), s.vals[oldEnd:]...)
	s.vals = append(s.vals[:oldStart], newValue...)
	s.vals = append(s.vals, tail...)

	for j := i + 1; j <= s.count; j++ {
		s.valOff[j] += int32(delta)
	}
	return nil
}

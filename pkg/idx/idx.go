// Package idx issues the ULID identifiers used for users, firms, tokens and
// sessions. ULIDs sort by creation time which keeps the token table's
// "latest issued" queries cheap.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type ID string

// Zero is the empty ID; only use it as a placeholder.
const Zero ID = ""

// ErrInvalid reports a malformed ULID string.
var ErrInvalid = errors.New("idx: invalid ulid")

// Source hands out monotonic ULIDs. It is safe for concurrent use.
type Source struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewSource returns a Source reading time from now. A nil now uses the wall clock.
func NewSource(now func() time.Time) *Source {
	if now == nil {
		now = time.Now
	}
	return &Source{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     now,
	}
}

// Next returns a new ID stamped with the source clock.
func (s *Source) Next() ID {
	return s.At(s.now())
}

// At returns a new ID stamped with t.
func (s *Source) At(t time.Time) ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ID(ulid.MustNew(ulid.Timestamp(t.UTC()), s.entropy).String())
}

var (
	defaultOnce sync.Once
	defaultSrc  *Source
)

func source() *Source {
	defaultOnce.Do(func() { defaultSrc = NewSource(nil) })
	return defaultSrc
}

// New returns an ID for the current time from the process-wide source.
func New() ID { return source().Next() }

// NewAt returns an ID for t from the process-wide source.
func NewAt(t time.Time) ID { return source().At(t) }

// Parse validates s as a ULID.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}
	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}
	return ID(s), nil
}

// MustParse parses or panics. Handy for fixed IDs in tests.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) IsZero() bool   { return id == Zero }
func (id ID) String() string { return string(id) }

// Time extracts the embedded timestamp, or the zero time for invalid IDs.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(id.String())
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}

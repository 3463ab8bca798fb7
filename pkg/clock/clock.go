// Package clock pins every settlement timestamp to one fixed UTC offset.
package clock

import (
	"fmt"
	"strings"
	"time"
)

// DefaultOffsetHours is the reference offset (KST) all stored and compared timestamps use.
const DefaultOffsetHours = 9

// Clock returns the current instant in the settlement zone.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// Zone builds the fixed settlement location for the given offset.
func Zone(offsetHours int) *time.Location {
	name := fmt.Sprintf("UTC%+03d:00", offsetHours)
	return time.FixedZone(name, offsetHours*int(time.Hour/time.Second))
}

type system struct {
	loc *time.Location
}

// New returns the wall clock in the given fixed offset.
func New(offsetHours int) Clock {
	return system{loc: Zone(offsetHours)}
}

func (s system) Now() time.Time {
	return time.Now().In(s.loc)
}

func (s system) Location() *time.Location {
	return s.loc
}

// Normalize converts t into the settlement zone. Zero values stay zero.
func Normalize(c Clock, t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.In(c.Location())
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Parse reads an RFC 3339 timestamp. Values without an offset are read as
// wall-clock time in the settlement zone.
func Parse(c Clock, raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.In(c.Location()), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, c.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// Fixed is a Clock frozen at a single instant. Tests advance it explicitly.
type Fixed struct {
	At time.Time
}

func (f *Fixed) Now() time.Time {
	return f.At
}

func (f *Fixed) Location() *time.Location {
	if f.At.Location() == nil {
		return time.UTC
	}
	return f.At.Location()
}

// Advance moves the frozen instant forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.At = f.At.Add(d)
}

package models

import "fmt"

// EntityKind identifies one of the four domain record types managed by
// the sync engine.
type EntityKind string

const (
	KindMessage EntityKind = "message"
	KindFile    EntityKind = "file"
	KindEvent   EntityKind = "event"
	KindUser    EntityKind = "user"
)

// Kinds lists all entity kinds in a stable order.
func Kinds() []EntityKind {
	return []EntityKind{KindMessage, KindFile, KindEvent, KindUser}
}

// Valid reports whether k is one of the known entity kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindMessage, KindFile, KindEvent, KindUser:
		return true
	}
	return false
}

// Table returns the sqlite table that stores records of this kind.
func (k EntityKind) Table() string {
	switch k {
	case KindMessage:
		return "messages"
	case KindFile:
		return "files"
	case KindEvent:
		return "events"
	case KindUser:
		return "users"
	}
	return ""
}

// String returns the string representation of the kind.
func (k EntityKind) String() string {
	return string(k)
}

// ParseEntityKind converts a string into an EntityKind.
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

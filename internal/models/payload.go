package models

import (
	"encoding/json"
	"fmt"
)

// payloadHeader is the subset of fields every payload must carry. The
// engine treats payloads as opaque beyond these.
type payloadHeader struct {
	ID         UUID  `json:"id"`
	ModifiedAt int64 `json:"modified_at"`
	SentAt     int64 `json:"sent_at"`
	UploadedAt int64 `json:"uploaded_at"`
	StartsAt   int64 `json:"starts_at"`
}

// EntityID extracts the entity identifier from a raw payload.
func EntityID(body json.RawMessage) (UUID, error) {
	var h payloadHeader
	if err := json.Unmarshal(body, &h); err != nil {
		return "", fmt.Errorf("failed to decode payload: %w", err)
	}
	if h.ID == "" {
		return "", fmt.Errorf("payload has no id field")
	}
	return h.ID, nil
}

// ModificationMarker extracts the modification timestamp from a raw
// payload. Every entity kind is required to carry modified_at, which is
// what conflict detection compares.
func ModificationMarker(body json.RawMessage) (int64, error) {
	var h payloadHeader
	if err := json.Unmarshal(body, &h); err != nil {
		return 0, fmt.Errorf("failed to decode payload: %w", err)
	}
	if h.ModifiedAt == 0 {
		return 0, fmt.Errorf("payload has no modified_at field")
	}
	return h.ModifiedAt, nil
}

// NaturalTimestamp extracts the kind-specific ordering field from a raw
// payload: message send time, file upload time, event start time, and
// modification time for user profiles.
func NaturalTimestamp(kind EntityKind, body json.RawMessage) (int64, error) {
	var h payloadHeader
	if err := json.Unmarshal(body, &h); err != nil {
		return 0, fmt.Errorf("failed to decode payload: %w", err)
	}
	switch kind {
	case KindMessage:
		return h.SentAt, nil
	case KindFile:
		return h.UploadedAt, nil
	case KindEvent:
		return h.StartsAt, nil
	case KindUser:
		return h.ModifiedAt, nil
	}
	return 0, fmt.Errorf("unknown entity kind %q", kind)
}

// NaturalOrderDescending reports whether records of this kind are listed
// newest-first. Messages and events read naturally oldest-first, files
// and the user profile newest-first.
func NaturalOrderDescending(kind EntityKind) bool {
	return kind == KindFile || kind == KindUser
}

// DecodePayload unmarshals a raw payload into the typed struct for its
// kind. Callers that only need the header fields should use EntityID or
// ModificationMarker instead.
func DecodePayload(kind EntityKind, body json.RawMessage) (interface{}, error) {
	var (
		v   interface{}
		err error
	)
	switch kind {
	case KindMessage:
		m := &Message{}
		err = json.Unmarshal(body, m)
		v = m
	case KindFile:
		f := &FileAsset{}
		err = json.Unmarshal(body, f)
		v = f
	case KindEvent:
		e := &CalendarEvent{}
		err = json.Unmarshal(body, e)
		v = e
	case KindUser:
		u := &UserProfile{}
		err = json.Unmarshal(body, u)
		v = u
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	return v, nil
}

package services

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	AuditResultSuccess    = "SUCCESS"
	AuditResultValidation = "VALIDATION"
	AuditResultBlocked    = "BLOCKED"
)

type AuditLogInsert struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	RequestID       string
	TransactionTime time.Time
	ActorID         uuid.UUID
	Action          string
	Result          string
	EntityType      string
	EntityID        uuid.UUID
	RunID           *uuid.UUID
	Reason          string
	OldValues       any
	NewValues       any
	Meta            map[string]any
}

func (a AuditLogInsert) marshalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (a AuditLogInsert) MarshalOldValues() (string, bool, error) {
	s, err := a.marshalJSON(a.OldValues)
	if err != nil {
		return "", false, err
	}
	if s == "" {
		return "", false, nil
	}
	return s, true, nil
}

func (a AuditLogInsert) MarshalNewValues() (string, error) {
	s, err := a.marshalJSON(a.NewValues)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "{}", nil
	}
	return s, nil
}

func (a AuditLogInsert) MarshalMeta() (string, error) {
	meta := map[string]any{}
	for k, v := range a.Meta {
		meta[k] = v
	}
	if a.Reason != "" {
		meta["reason"] = a.Reason
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

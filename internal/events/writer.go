package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	ProposalCreated    = "proposal.created"
	ProposalAccepted   = "proposal.accepted"
	ProposalDeclined   = "proposal.declined"
	ProposalCancelled  = "proposal.cancelled"
	ProposalNegotiated = "proposal.negotiated"
	ProposalExpired    = "proposal.expired"
	ProposalMessage    = "proposal.message"
	ProposalReported   = "proposal.reported"
	BusinessBlocked    = "business.blocked"
	BusinessUnblocked  = "business.unblocked"
	BusinessUpserted   = "business.upserted"
	ConfigImported     = "config.imported"
	RoleGranted        = "rbac.granted"
	RoleRevoked        = "rbac.revoked"
	APIKeyCreated      = "apikey.created"
	APIKeyDeleted      = "apikey.deleted"
)

// Writer appends to the action log inside the caller's transaction so the
// event commits with the change it describes.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data)); err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

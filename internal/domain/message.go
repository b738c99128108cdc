package domain

import "time"

// MessageStatus enumerates the DAG of delivery states a Message may occupy.
// Transitions are enforced by the Store's compare-and-set TransitionMessage.
type MessageStatus string

const (
	MessageQueued      MessageStatus = "QUEUED"
	MessageSending     MessageStatus = "SENDING"
	MessageSent        MessageStatus = "SENT"
	MessageDelivered   MessageStatus = "DELIVERED"
	MessageRead        MessageStatus = "READ"
	MessageFailed      MessageStatus = "FAILED"
	MessageUndelivered MessageStatus = "UNDELIVERED"
)

// IsTerminal reports whether a message has reached a final resting state
// for completion-detection purposes.
func (s MessageStatus) IsTerminal() bool {
	switch s {
	case MessageSent, MessageDelivered, MessageRead, MessageFailed, MessageUndelivered:
		return true
	default:
		return false
	}
}

// Message is one per-recipient unit of work materialized from a campaign.
type Message struct {
	ID              string        `json:"id" db:"id"`
	CampaignID      string        `json:"campaign_id" db:"campaign_id"`
	RecipientE164   string        `json:"recipient_e164" db:"recipient_e164"`
	RenderedContent string        `json:"rendered_content" db:"rendered_content"`
	Status          MessageStatus `json:"status" db:"status"`
	ProviderSid     *string       `json:"provider_sid" db:"provider_sid"`
	ErrorCode       *string       `json:"error_code" db:"error_code"`
	RetryCount      int           `json:"retry_count" db:"retry_count"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	SentAt          *time.Time    `json:"sent_at" db:"sent_at"`
	DeliveredAt     *time.Time    `json:"delivered_at" db:"delivered_at"`
}

// statusCallbackTransitions implements spec.md §4.7's status-callback table:
// rows are the message's current status, columns are the inbound callback
// verb. A missing entry means the callback is a no-op from that status.
var statusCallbackTransitions = map[MessageStatus]map[string]MessageStatus{
	MessageQueued: {
		"sent": MessageSent, "delivered": MessageDelivered, "read": MessageRead,
		"failed": MessageFailed, "undelivered": MessageUndelivered,
	},
	MessageSending: {
		"sent": MessageSent, "delivered": MessageDelivered, "read": MessageRead,
		"failed": MessageFailed, "undelivered": MessageUndelivered,
	},
	MessageSent: {
		"delivered": MessageDelivered, "read": MessageRead,
		"failed": MessageFailed, "undelivered": MessageUndelivered,
	},
	MessageDelivered: {
		"read": MessageRead,
	},
}

// NextStatusForCallback returns the status a message should move to after
// receiving the given callback verb from its current status, and whether
// any transition applies at all (false means a no-op per the DAG).
func NextStatusForCallback(current MessageStatus, callback string) (MessageStatus, bool) {
	next, ok := statusCallbackTransitions[current][callback]
	return next, ok
}

// AuditOutcome is the terminal classification recorded on an AuditRecord.
type AuditOutcome string

const (
	AuditAdmitted AuditOutcome = "ADMITTED"
	AuditSkipped  AuditOutcome = "SKIPPED"
	AuditFailed   AuditOutcome = "FAILED"
	AuditRetried  AuditOutcome = "RETRIED"
	AuditDelayed  AuditOutcome = "DELAYED"
)

// AuditRecord is an append-only entry capturing one pipeline-stage outcome.
// Not explicitly named in spec.md but required by §4.7 stage 6 and the
// "complete audit trail" purpose statement.
type AuditRecord struct {
	ID         string       `json:"id" db:"id"`
	CampaignID string       `json:"campaign_id" db:"campaign_id"`
	MessageID  *string      `json:"message_id" db:"message_id"`
	Stage      string       `json:"stage" db:"stage"`
	Outcome    AuditOutcome `json:"outcome" db:"outcome"`
	Reason     string       `json:"reason,omitempty" db:"reason"`
	Detail     string       `json:"detail,omitempty" db:"detail"` // JSON-encoded
	At         time.Time    `json:"at" db:"at"`
}

// DeliveryReceipt is an append-only raw status-callback row.
type DeliveryReceipt struct {
	ID          string    `json:"id" db:"id"`
	RawPayload  string    `json:"raw_payload" db:"raw_payload"`
	ProviderSid string    `json:"provider_sid" db:"provider_sid"`
	Status      string    `json:"status" db:"status"`
	ErrorCode   string    `json:"error_code,omitempty" db:"error_code"`
	ReceivedAt  time.Time `json:"received_at" db:"received_at"`
}

// InboundEvent is an append-only raw inbound-message row.
type InboundEvent struct {
	ID                string    `json:"id" db:"id"`
	RawPayload        string    `json:"raw_payload" db:"raw_payload"`
	FromE164          string    `json:"from_e164" db:"from_e164"`
	NormalizedBody    string    `json:"normalized_body" db:"normalized_body"`
	ProviderMessageID string    `json:"provider_message_id" db:"provider_message_id"`
	ReceivedAt        time.Time `json:"received_at" db:"received_at"`
}

// WorkerHeartbeat is an operational liveness row a worker writes
// periodically. Not tied to any message-delivery invariant.
type WorkerHeartbeat struct {
	WorkerID        string    `json:"worker_id" db:"worker_id"`
	Hostname        string    `json:"hostname" db:"hostname"`
	Status          string    `json:"status" db:"status"`
	StartedAt       time.Time `json:"started_at" db:"started_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at" db:"last_heartbeat_at"`
}

package domain

import "time"

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignReady     CampaignStatus = "READY"
	CampaignRunning   CampaignStatus = "RUNNING"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCompleted CampaignStatus = "COMPLETED"
	CampaignFailed    CampaignStatus = "FAILED"
)

// QuietHours is a wall-clock window, interpreted in Timezone, during which
// dispatch is forbidden. A window with End < Start wraps past midnight;
// Overnight is stored as supplied and is not computed from Start and End.
type QuietHours struct {
	Start     string `json:"start" db:"quiet_start"` // "HH:MM"
	End       string `json:"end" db:"quiet_end"`     // "HH:MM"
	Timezone  string `json:"timezone" db:"quiet_timezone"`
	Overnight bool   `json:"overnight" db:"quiet_overnight"`
}

// Campaign drives one run of materialization and dispatch against a segment.
type Campaign struct {
	ID            string         `json:"id" db:"id"`
	Topic         string         `json:"topic" db:"topic"`
	TemplateID    string         `json:"template_id" db:"template_id"`
	SegmentID     string         `json:"segment_id" db:"segment_id"`
	ScheduleAt    *time.Time     `json:"schedule_at" db:"schedule_at"`
	Status        CampaignStatus `json:"status" db:"status"`
	RateLimit     int            `json:"rate_limit" db:"rate_limit"` // messages/second, >=1
	QuietHours    QuietHours     `json:"quiet_hours" db:"-"`
	Cursor        string         `json:"cursor" db:"cursor"` // opaque materialization resume cursor
	MaterializedAt *time.Time    `json:"materialized_at" db:"materialized_at"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the campaign has reached a final status.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignFailed
}

// campaignTransitions is the allowed campaign state machine, grounded on
// spec.md's DRAFT->READY->RUNNING->{COMPLETED,PAUSED->RUNNING} diagram plus
// any-state->FAILED on unrecoverable storage error.
var campaignTransitions = map[CampaignStatus]map[CampaignStatus]bool{
	CampaignDraft:     {CampaignReady: true, CampaignFailed: true},
	CampaignReady:     {CampaignRunning: true, CampaignFailed: true},
	CampaignRunning:   {CampaignCompleted: true, CampaignPaused: true, CampaignFailed: true},
	CampaignPaused:    {CampaignRunning: true, CampaignFailed: true},
	CampaignCompleted: {},
	CampaignFailed:    {},
}

// CanTransition reports whether moving from one campaign status to another
// is allowed by the state machine.
func CanTransition(from, to CampaignStatus) bool {
	return campaignTransitions[from][to]
}

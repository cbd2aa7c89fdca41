package models

import (
	"math"
	"time"
)

// Plan is a user's subscription tier.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// FreePlanMonthlyLimit caps LLM-backed replies for free users.
const FreePlanMonthlyLimit = 100

// UnlimitedMessages is the limit reported for plans without a cap.
const UnlimitedMessages = math.MaxInt32

// MonthLayout is the key format for quota rows.
const MonthLayout = "2006-01"

// MonthKey returns the quota bucket for t in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

// Limit returns the monthly cap for the plan.
func (p Plan) Limit() int {
	if p == PlanPremium {
		return UnlimitedMessages
	}
	return FreePlanMonthlyLimit
}

// MessageQuota is one user's counter for one calendar month.
type MessageQuota struct {
	UserID       string    `json:"user_id"`
	Month        string    `json:"month"`
	Plan         Plan      `json:"plan"`
	MessagesUsed int       `json:"messages_used"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Exhausted reports whether no further messages are allowed this month.
func (q *MessageQuota) Exhausted() bool {
	return q.MessagesUsed >= q.Plan.Limit()
}

// QuotaStatus is the read-only view exposed to clients.
type QuotaStatus struct {
	Plan          Plan   `json:"plan"`
	Month         string `json:"month"`
	MessagesUsed  int    `json:"messages_used"`
	MessagesLimit int    `json:"messages_limit"`
}

// Status converts the quota row to its public view.
func (q *MessageQuota) Status() QuotaStatus {
	return QuotaStatus{
		Plan:          q.Plan,
		Month:         q.Month,
		MessagesUsed:  q.MessagesUsed,
		MessagesLimit: q.Plan.Limit(),
	}
}

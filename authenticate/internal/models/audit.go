package models

import "time"

// AuditEntry is one append-only login attempt record.
// Username is stored as supplied by the caller, untrimmed.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Username  string    `json:"username"`
	Success   bool      `json:"success"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Signature string    `json:"signature,omitempty"`
}

// HistoryTimestampLayout is ISO-8601 in UTC with millisecond precision.
const HistoryTimestampLayout = "2006-01-02T15:04:05.000Z"

// ToHistoryItem renders the entry for getLoginHistory.
func (e *AuditEntry) ToHistoryItem() HistoryItem {
	ip := e.IP
	if ip == "" {
		ip = "-"
	}
	return HistoryItem{
		ID:        e.ID,
		Timestamp: e.Timestamp.UTC().Format(HistoryTimestampLayout),
		Username:  e.Username,
		Success:   e.Success,
		IP:        ip,
		UserAgent: e.UserAgent,
	}
}

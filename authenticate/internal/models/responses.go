package models

import "time"

// VerifyResponse is returned by the verifyUser action.
type VerifyResponse struct {
	Success           bool   `json:"success"`
	Authenticated     bool   `json:"authenticated"`
	Message           string `json:"message"`
	Locked            bool   `json:"locked,omitempty"`
	LockTime          string `json:"lockTime,omitempty"`
	AttemptsRemaining int    `json:"attemptsRemaining,omitempty"`
	Username          string `json:"username,omitempty"`
}

// HistoryItem is one row of the getLoginHistory response.
type HistoryItem struct {
	ID        int64  `json:"id" yaml:"id"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Username  string `json:"username" yaml:"username"`
	Success   bool   `json:"success" yaml:"success"`
	IP        string `json:"ip" yaml:"ip"`
	UserAgent string `json:"userAgent" yaml:"userAgent"`
}

// HistoryResponse is returned by the getLoginHistory action.
type HistoryResponse struct {
	Success bool          `json:"success"`
	History []HistoryItem `json:"history"`
}

// AckResponse is returned by recordLoginHistory and unlockUser.
type AckResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// LockTimeLayout is minute precision with no zone offset.
const LockTimeLayout = "2006-01-02 15:04"

// FormatLockTime renders t in loc (time.Local when nil).
func FormatLockTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(LockTimeLayout)
}

// NewHistoryResponse converts entries, keeping their order.
func NewHistoryResponse(entries []*AuditEntry) HistoryResponse {
	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, e.ToHistoryItem())
	}
	return HistoryResponse{Success: true, History: items}
}

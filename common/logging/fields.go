package logging

import (
	"log/slog"
	"time"
)

// Field names shared by every component so log queries stay stable.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldUsername  = "username"
	FieldAction    = "action"
	FieldOutcome   = "outcome"
	FieldIP        = "ip"
	FieldUserAgent = "user_agent"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldEntryID   = "entry_id"
	FieldBackend   = "backend"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func RequestID(id string) slog.Attr {
	return slog.String(FieldRequestID, id)
}

func Username(name string) slog.Attr {
	return slog.String(FieldUsername, name)
}

// Action is the request selector on the action endpoint (verifyUser, unlockUser, ...).
func Action(name string) slog.Attr {
	return slog.String(FieldAction, name)
}

func Outcome(outcome string) slog.Attr {
	return slog.String(FieldOutcome, outcome)
}

func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

func UserAgent(ua string) slog.Attr {
	return slog.String(FieldUserAgent, ua)
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration records d in whole milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error records err's message. A nil error is recorded as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

func EntryID(id int64) slog.Attr {
	return slog.Int64(FieldEntryID, id)
}

// Backend names the storage backend (memory, postgres, sqlite).
func Backend(name string) slog.Attr {
	return slog.String(FieldBackend, name)
}

package messaging

// Subjects follow {domain}.{resource}.{event}.
const (
	SubjectLoginAttempts   = "auth.login.attempts"   // every audited attempt
	SubjectAccountLocked   = "auth.account.locked"   // threshold reached
	SubjectAccountUnlocked = "auth.account.unlocked" // administrative unlock

	// SubjectAuthWildcard captures all auth subjects, used for the JetStream stream.
	SubjectAuthWildcard = "auth.>"
)

// Header keys carried on published messages.
const (
	HeaderEventID   = "Event-Id"
	HeaderRequestID = "Request-Id"
	HeaderUsername  = "Username"
)

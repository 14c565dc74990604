package messaging

// HealthStatus reports the state of a broker connection for /healthz.
type HealthStatus struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// CheckPublisherHealth reports whether p is connected. A nil publisher means
// the bus is disabled, which is healthy.
func CheckPublisherHealth(p Publisher) HealthStatus {
	if p == nil {
		return HealthStatus{Connected: false}
	}
	if !p.IsConnected() {
		return HealthStatus{Error: "not connected to message broker"}
	}
	return HealthStatus{Connected: true}
}

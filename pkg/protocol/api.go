package protocol

import "time"

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Status        string    `json:"status"`
	Uptime        string    `json:"uptime"`
	Name          string    `json:"name"`
	Provider      string    `json:"provider"`
	NATSRunning   bool      `json:"nats_running"`
	StartedAt     time.Time `json:"started_at"`
	ServerRunning bool      `json:"server_running"`
	ServerListen  string    `json:"server_listen,omitempty"`
	ClientTarget  string    `json:"client_target,omitempty"`
	ClientCount   int       `json:"client_count"`
	ExpiredCount  int       `json:"expired_count"`
	Integrations  []string  `json:"integrations"`
}

// ClientInfo is one entry in the GET /api/v1/clients response.
type ClientInfo struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Ticks     uint16    `json:"ticks"`
	MaxTicks  uint16    `json:"max_ticks"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// ClientsResponse is returned by GET /api/v1/clients.
type ClientsResponse struct {
	Clients []ClientInfo `json:"clients"`
}

// AlertRecord is a stored alert as returned by GET /api/v1/alerts.
type AlertRecord struct {
	ID       string    `json:"id"`
	Code     string    `json:"code"`
	Target   Target    `json:"target"`
	Hostname string    `json:"hostname"`
	Time     time.Time `json:"time"`
	Detail   string    `json:"detail,omitempty"`
}

// Target identifies the subject of an alert.
type Target struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// AlertsResponse is returned by GET /api/v1/alerts, newest first.
type AlertsResponse struct {
	Alerts []AlertRecord `json:"alerts"`
}

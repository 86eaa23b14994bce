package supervisor

import "time"

// ProcessStatus is a point-in-time snapshot of one managed process, used
// by the status HTTP surface and logged periodically by the supervisor.
type ProcessStatus struct {
	Name         string    `json:"name"`
	Running      bool      `json:"running"`
	StartedAt    time.Time `json:"started_at"`
	RestartCount int       `json:"restart_count"`
}

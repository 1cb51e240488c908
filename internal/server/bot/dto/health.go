package dto

import "time"

type HealthResponse struct {
	Status            string     `json:"status"`
	InstanceID        string     `json:"instance_id"`
	Username          string     `json:"username"`
	Version           string     `json:"version"`
	StartTime         time.Time  `json:"start_time"`
	Uptime            string     `json:"uptime"`
	LastHeartbeat     *time.Time `json:"last_heartbeat,omitempty"`
	LastHeartbeatOK   bool       `json:"last_heartbeat_ok"`
	LastHeartbeatErr  string     `json:"last_heartbeat_error,omitempty"`
	HeartbeatAttempts int        `json:"heartbeat_attempts"`
}

// Package vbt implements velocity-based training analytics: logged bar
// velocities per rep, load-velocity profiling with 1RM estimation, and a
// live session monitor that flags when velocity loss crosses the
// configured stop threshold.
package vbt

import "time"

type Session struct {
	ID                  string     `json:"id"`
	ClientID            string     `json:"client_id"`
	Exercise            string     `json:"exercise"`
	VelocityLossStopPct float64    `json:"velocity_loss_stop_pct"`
	StartedAt           time.Time  `json:"started_at"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
}

// RepRecord is one rep's measurement. MeanVelocity is the mean concentric
// bar velocity in m/s as reported by the measuring device.
type RepRecord struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	SetNumber    int       `json:"set_number"`
	RepNumber    int       `json:"rep_number"`
	LoadKg       float64   `json:"load_kg"`
	MeanVelocity float64   `json:"mean_velocity"`
	CreatedAt    time.Time `json:"created_at"`
}

package domain

import "time"

// EngineStatus is the read-only snapshot published by the engine after each
// cycle, served on the ops endpoint.
type EngineStatus struct {
	Symbol       string    `json:"symbol"`
	Position     float64   `json:"position"`
	AverageCost  float64   `json:"averageCost"`
	LastMid      float64   `json:"lastMid"`
	Paused       bool      `json:"paused"`
	Halted       bool      `json:"halted"`
	ActiveOrders []Order   `json:"activeOrders"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

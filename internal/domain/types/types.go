// Package types contains common types used across the application
package types

// RankedShift represents one row of the top momentum shifts ranking.
// Rows are ordered by absolute score, largest swing first.
type RankedShift struct {
	Rank     int     `json:"rank"`
	MomentID string  `json:"moment_id"`
	PlayerID string  `json:"player_id"`
	Score    float64 `json:"score"`
}

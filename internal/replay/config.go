package replay

import (
	"time"

	"github.com/highleverage/momentum/internal/domain/model"
)

// Config holds configuration for a replay run.
type Config struct {
	Moments    int    // Number of pivotal moments to generate
	Batters    int    // Batters on the synthetic roster
	Pitchers   int    // Pitchers on the synthetic roster
	Seed       int64  // Seed for the season generator
	TopN       int    // Number of top shifts to fetch
	Workers    int    // Number of concurrent workers
	OutputFile string // Output file for generated moments
	FeedFile   string // Stat feed file: written when generating, read with InputFile
	InputFile  string // Previously saved moments to replay instead of generating
	LogFile    string // Log file for replay output
	Verbose    bool   // Enable verbose logging
}

// Event is the on-disk form of one pivotal moment with its sentiment
// observations. Timestamps marshal as RFC3339, matching the HTTP wire shape.
type Event struct {
	EventID         string        `json:"event_id"`
	GameID          string        `json:"game_id"`
	Timestamp       time.Time     `json:"ts"`
	Season          int           `json:"season"`
	Phase           string        `json:"phase"`
	Inning          int           `json:"inning"`
	Half            string        `json:"half"`
	HomeScoreBefore int           `json:"home_score_before"`
	AwayScoreBefore int           `json:"away_score_before"`
	HomeScoreAfter  int           `json:"home_score_after"`
	AwayScoreAfter  int           `json:"away_score_after"`
	WinProbBefore   float64       `json:"win_prob_before"`
	WinProbAfter    float64       `json:"win_prob_after"`
	Outcome         string        `json:"outcome"`
	BattingTeam     string        `json:"batting_team"`
	BatterID        string        `json:"batter_id"`
	PitcherID       string        `json:"pitcher_id"`
	FielderIDs      []string      `json:"fielder_ids,omitempty"`
	Pitches         []Pitch       `json:"pitches,omitempty"`
	Observations    []Observation `json:"observations,omitempty"`
}

// Pitch is one entry of an event's pitch sequence.
type Pitch struct {
	Seq      int     `json:"seq"`
	Type     string  `json:"type"`
	Velocity float64 `json:"velocity"`
	Result   string  `json:"result"`
}

// Observation is one sentiment reading attached to an event.
type Observation struct {
	PlayerID      string  `json:"player_id"`
	Source        string  `json:"source"`
	Polarity      float64 `json:"polarity"`
	Volume        float64 `json:"volume"`
	OffsetSeconds float64 `json:"offset_seconds"`
}

// scoreRequest converts the event into the engine's scoring task.
func (e Event) scoreRequest() model.ScoreRequest {
	req := model.ScoreRequest{
		Raw: model.RawEvent{
			EventID:         e.EventID,
			GameID:          e.GameID,
			Timestamp:       e.Timestamp,
			Season:          e.Season,
			Phase:           e.Phase,
			Inning:          e.Inning,
			Half:            e.Half,
			HomeScoreBefore: e.HomeScoreBefore,
			AwayScoreBefore: e.AwayScoreBefore,
			HomeScoreAfter:  e.HomeScoreAfter,
			AwayScoreAfter:  e.AwayScoreAfter,
			WinProbBefore:   e.WinProbBefore,
			WinProbAfter:    e.WinProbAfter,
			Outcome:         e.Outcome,
			BattingTeam:     e.BattingTeam,
			BatterID:        e.BatterID,
			PitcherID:       e.PitcherID,
			FielderIDs:      e.FielderIDs,
		},
	}
	for _, p := range e.Pitches {
		req.Raw.Pitches = append(req.Raw.Pitches, model.Pitch{
			Seq:      p.Seq,
			Type:     p.Type,
			Velocity: p.Velocity,
			Result:   p.Result,
		})
	}
	for _, o := range e.Observations {
		req.Observations = append(req.Observations, model.SentimentObservation{
			MomentID: e.EventID,
			PlayerID: o.PlayerID,
			Source:   model.SourceType(o.Source),
			Polarity: o.Polarity,
			Volume:   o.Volume,
			Offset:   time.Duration(o.OffsetSeconds * float64(time.Second)),
		})
	}
	return req
}

// Stats holds replay statistics.
type Stats struct {
	MomentsGenerated   int
	MomentsSubmitted   int
	MomentsAccepted    int
	MomentsFailed      int
	ResultsRetrieved   int
	ShiftsRetrieved    int
	PredictionsIssued  int
	PredictionsSettled int
	WeightVersion      string
	ModelVersion       string
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}

// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/highleverage/momentum/internal/adapters/ledger"
	"github.com/highleverage/momentum/internal/domain/dedupe"
	"github.com/highleverage/momentum/internal/domain/evaluate"
	"github.com/highleverage/momentum/internal/domain/model"
	"github.com/highleverage/momentum/internal/domain/moment"
	"github.com/highleverage/momentum/internal/domain/predict"
	"github.com/highleverage/momentum/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the engine behind it.
type Dependencies interface {
	dedupe.Deduper

	// Enqueue pushes a score request for async scoring. Returns false on
	// backpressure. Duplicate arbitration happens here in the handler, not
	// behind the queue, so duplicates can be acknowledged to the caller.
	Enqueue(ctx context.Context, req model.ScoreRequest) bool

	// Read operations expose ledger data.
	Result(ctx context.Context, momentID, playerID string) (model.MSSResult, error)
	ResultsForMoment(ctx context.Context, momentID string) ([]model.MSSResult, error)
	TopShifts(ctx context.Context, n int) ([]RankedShift, error)
	WeightSet(ctx context.Context, version string) (model.WeightSet, error)
	WeightHistory(ctx context.Context) ([]model.WeightSet, error)
	LatestReport(ctx context.Context) (model.CalibrationReport, error)

	// RefitSettled recalibrates over the settled predictions in the ledger
	// and publishes the successor weight set and model version.
	RefitSettled(ctx context.Context) (evaluate.RefitOutcome, error)
}

// RankedShift mirrors the read shape returned by ranking queries.
type RankedShift = types.RankedShift

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	momentsHandler *MomentsHandler
	resultsHandler *ResultsHandler
	shiftsHandler  *ShiftsHandler
	weightsHandler *WeightsHandler
	refitHandler   *RefitHandler
	reportHandler  *ReportHandler
}

// NewServer creates a new API server with all handlers. maxShiftLimit caps
// the limit GET /shifts will serve.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxShiftLimit int) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		momentsHandler: NewMomentsHandler(deps),
		resultsHandler: NewResultsHandler(deps),
		shiftsHandler:  NewShiftsHandler(deps, maxShiftLimit),
		weightsHandler: NewWeightsHandler(deps),
		refitHandler:   NewRefitHandler(deps),
		reportHandler:  NewReportHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux, deps Dependencies) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/moments", MetricsMiddleware(s.momentsHandler.HandlePostMoment, "moments"))
	mux.HandleFunc("/results/", MetricsMiddleware(s.resultsHandler.HandleGetResults, "results"))
	mux.HandleFunc("/shifts", MetricsMiddleware(s.shiftsHandler.HandleGetShifts, "shifts"))
	mux.HandleFunc("/weights", MetricsMiddleware(s.weightsHandler.HandleGetLatest, "weights"))
	mux.HandleFunc("/weights/", MetricsMiddleware(s.weightsHandler.HandleGetVersion, "weight_version"))
	mux.HandleFunc("/refit", MetricsMiddleware(s.refitHandler.HandlePostRefit, "refit"))
	mux.HandleFunc("/report", MetricsMiddleware(s.reportHandler.HandleGetReport, "report"))
}

// pitchRequest is one entry of the optional pitch sequence.
type pitchRequest struct {
	Seq      int     `json:"seq"`
	Type     string  `json:"type"`
	Velocity float64 `json:"velocity,omitempty"`
	Result   string  `json:"result"`
}

// observationRequest is one sentiment observation riding along with the
// event. Offset counts seconds between the moment and the observation.
type observationRequest struct {
	PlayerID      string  `json:"player_id"`
	Source        string  `json:"source"`
	Polarity      float64 `json:"polarity"`
	Volume        float64 `json:"volume"`
	OffsetSeconds float64 `json:"offset_seconds"`
}

// momentRequest mirrors the OpenAPI schema for POST /moments.
type momentRequest struct {
	EventID         string               `json:"event_id"`
	GameID          string               `json:"game_id"`
	TS              string               `json:"ts"`
	Season          int                  `json:"season"`
	Phase           string               `json:"phase"`
	Inning          int                  `json:"inning"`
	Half            string               `json:"half"`
	HomeScoreBefore int                  `json:"home_score_before"`
	AwayScoreBefore int                  `json:"away_score_before"`
	HomeScoreAfter  int                  `json:"home_score_after"`
	AwayScoreAfter  int                  `json:"away_score_after"`
	WinProbBefore   float64              `json:"win_prob_before"`
	WinProbAfter    float64              `json:"win_prob_after"`
	Outcome         string               `json:"outcome"`
	BattingTeam     string               `json:"batting_team"`
	BatterID        string               `json:"batter_id"`
	PitcherID       string               `json:"pitcher_id"`
	FielderIDs      []string             `json:"fielder_ids,omitempty"`
	Pitches         []pitchRequest       `json:"pitches,omitempty"`
	Observations    []observationRequest `json:"observations,omitempty"`
}

// validate checks the wire-level shape. Domain validation of the event
// itself, with per-field reporting, is the moment builder's job.
func (m momentRequest) validate() error {
	switch {
	case strings.TrimSpace(m.EventID) == "":
		return errors.New("missing event_id")
	case strings.TrimSpace(m.TS) == "":
		return errors.New("missing ts")
	}
	if _, err := time.Parse(time.RFC3339, m.TS); err != nil {
		return errors.New("invalid ts; must be RFC3339")
	}
	for i, o := range m.Observations {
		if strings.TrimSpace(o.PlayerID) == "" {
			return fmt.Errorf("missing observations[%d].player_id", i)
		}
	}
	return nil
}

// toModel converts the validated wire payload into a domain score request.
func (m momentRequest) toModel() model.ScoreRequest {
	ts, _ := time.Parse(time.RFC3339, m.TS)
	raw := model.RawEvent{
		EventID:         strings.TrimSpace(m.EventID),
		GameID:          m.GameID,
		Timestamp:       ts,
		Season:          m.Season,
		Phase:           m.Phase,
		Inning:          m.Inning,
		Half:            m.Half,
		HomeScoreBefore: m.HomeScoreBefore,
		AwayScoreBefore: m.AwayScoreBefore,
		HomeScoreAfter:  m.HomeScoreAfter,
		AwayScoreAfter:  m.AwayScoreAfter,
		WinProbBefore:   m.WinProbBefore,
		WinProbAfter:    m.WinProbAfter,
		Outcome:         m.Outcome,
		BattingTeam:     m.BattingTeam,
		BatterID:        m.BatterID,
		PitcherID:       m.PitcherID,
		FielderIDs:      m.FielderIDs,
	}
	for _, p := range m.Pitches {
		raw.Pitches = append(raw.Pitches, model.Pitch{
			Seq:      p.Seq,
			Type:     p.Type,
			Velocity: p.Velocity,
			Result:   p.Result,
		})
	}

	req := model.ScoreRequest{Raw: raw}
	for _, o := range m.Observations {
		req.Observations = append(req.Observations, model.SentimentObservation{
			MomentID: raw.EventID,
			PlayerID: strings.TrimSpace(o.PlayerID),
			Source:   model.SourceType(o.Source),
			Polarity: o.Polarity,
			Volume:   o.Volume,
			Offset:   time.Duration(o.OffsetSeconds * float64(time.Second)),
		})
	}
	return req
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	var fields []string
	if err != nil {
		msg = err.Error()
		var malformed *moment.MalformedError
		if errors.As(err, &malformed) {
			fields = malformed.Fields
		}
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Fields: fields})
}

// isNotFound translates upstream not-found kinds to 404. Everything the
// ledger has never stored lands here, as do predictions against a model
// version that was never fitted.
func isNotFound(err error) bool {
	switch {
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrNoWeights),
		errors.Is(err, ledger.ErrNoReport),
		errors.Is(err, predict.ErrUntrained):
		return true
	}
	return false
}

package replay

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/highleverage/momentum/internal/domain/model"
	"github.com/highleverage/momentum/internal/domain/moment"
	"github.com/highleverage/momentum/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func TestGenerateSeasonMomentsBuild(t *testing.T) {
	cfg := &Config{Moments: 300, Batters: 20, Pitchers: 10, Seed: 7, Workers: 3}
	feed, events, err := generateSeason(context.Background(), cfg, &Stats{})
	if err != nil {
		t.Fatalf("generateSeason: %v", err)
	}
	if len(events) != cfg.Moments {
		t.Fatalf("generated %d moments, want %d", len(events), cfg.Moments)
	}

	ids := make(map[string]bool, len(events))
	for i, e := range events {
		if _, err := moment.Build(e.scoreRequest().Raw); err != nil {
			t.Fatalf("moment %d (%s) rejected by the builder: %v", i, e.Outcome, err)
		}
		if ids[e.EventID] {
			t.Fatalf("duplicate event id %s", e.EventID)
		}
		ids[e.EventID] = true
	}

	// Every referenced player must be in the stat feed, or enrichment would
	// come up empty for them.
	players := make(map[string]bool, len(feed.Players))
	for _, p := range feed.Players {
		players[p.PlayerID] = true
	}
	for _, e := range events {
		if !players[e.BatterID] {
			t.Fatalf("batter %s missing from the feed", e.BatterID)
		}
		if !players[e.PitcherID] {
			t.Fatalf("pitcher %s missing from the feed", e.PitcherID)
		}
		for _, id := range e.FielderIDs {
			if !players[id] {
				t.Fatalf("fielder %s missing from the feed", id)
			}
		}
	}
}

func TestGenerateSeasonDeterministic(t *testing.T) {
	cfg := func() *Config {
		return &Config{Moments: 120, Batters: 12, Pitchers: 8, Seed: 42, Workers: 4}
	}

	feedA, eventsA, err := generateSeason(context.Background(), cfg(), &Stats{})
	if err != nil {
		t.Fatalf("first generation: %v", err)
	}
	feedB, eventsB, err := generateSeason(context.Background(), cfg(), &Stats{})
	if err != nil {
		t.Fatalf("second generation: %v", err)
	}

	if !reflect.DeepEqual(feedA, feedB) {
		t.Fatal("stat feeds differ across identical seeds")
	}
	if len(eventsA) != len(eventsB) {
		t.Fatalf("moment counts differ: %d vs %d", len(eventsA), len(eventsB))
	}
	for i := range eventsA {
		// Event ids are freshly minted uuids; everything else must repeat.
		a, b := eventsA[i], eventsB[i]
		a.EventID, b.EventID = "", ""
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("moment %d differs across identical seeds", i)
		}
	}
}

func TestGenerateSeasonFeedShape(t *testing.T) {
	cfg := &Config{Moments: 50, Batters: 8, Pitchers: 5, Seed: 3, Workers: 2}
	feed, _, err := generateSeason(context.Background(), cfg, &Stats{})
	if err != nil {
		t.Fatalf("generateSeason: %v", err)
	}

	if got, want := len(feed.Players), cfg.Batters+cfg.Pitchers; got != want {
		t.Fatalf("feed carries %d players, want %d", got, want)
	}
	for _, p := range feed.Players {
		if len(p.History) < minAppearances {
			t.Errorf("player %s has only %d appearances", p.PlayerID, len(p.History))
		}
		if len(p.Holdout) != holdoutPeriods {
			t.Errorf("player %s holdout length %d, want %d", p.PlayerID, len(p.Holdout), holdoutPeriods)
		}
		if p.Seasons <= 0 {
			t.Errorf("player %s has non-positive seasons %v", p.PlayerID, p.Seasons)
		}
		for _, s := range p.History {
			if !s.Date.Before(feed.Cutoff) {
				t.Errorf("player %s appearance at %s is not before the cutoff %s",
					p.PlayerID, s.Date, feed.Cutoff)
			}
		}
	}
}

func TestMomentumKicks(t *testing.T) {
	events := []Event{
		{BatterID: "b-001", PitcherID: "p-001", BattingTeam: "home", WinProbBefore: 0.5, WinProbAfter: 0.8},
		{BatterID: "b-002", PitcherID: "p-001", BattingTeam: "away", WinProbBefore: 0.6, WinProbAfter: 0.4},
	}
	kicks := momentumKicks(events)

	if got, want := kicks["b-001"], 0.3*momentumKickScale; math.Abs(got-want) > 1e-9 {
		t.Errorf("home batter kick %v, want %v", got, want)
	}
	if got, want := kicks["b-002"], 0.2*momentumKickScale; math.Abs(got-want) > 1e-9 {
		t.Errorf("away batter kick %v, want %v", got, want)
	}
	// The pitcher was on the losing side of both swings and hits the cap.
	if got := kicks["p-001"]; math.Abs(got+momentumKickCap) > 1e-9 {
		t.Errorf("pitcher kick %v, want %v", got, -momentumKickCap)
	}
}

func TestEventScoreRequest(t *testing.T) {
	ts := time.Date(2025, 7, 4, 21, 15, 0, 0, time.UTC)
	e := Event{
		EventID:         "ev-1",
		GameID:          "g-1",
		Timestamp:       ts,
		Season:          2025,
		Phase:           "postseason",
		Inning:          9,
		Half:            "bottom",
		HomeScoreBefore: 3,
		AwayScoreBefore: 4,
		HomeScoreAfter:  5,
		AwayScoreAfter:  4,
		WinProbBefore:   0.41,
		WinProbAfter:    1.0,
		Outcome:         "walk_off",
		BattingTeam:     "home",
		BatterID:        "b-001",
		PitcherID:       "p-001",
		FielderIDs:      []string{"b-002"},
		Pitches:         []Pitch{{Seq: 1, Type: "slider", Velocity: 88.5, Result: "in_play"}},
		Observations: []Observation{
			{PlayerID: "b-001", Source: "fan", Polarity: 0.8, Volume: 120, OffsetSeconds: 90},
		},
	}

	req := e.scoreRequest()

	if req.Raw.EventID != "ev-1" || req.Raw.Outcome != "walk_off" || !req.Raw.Timestamp.Equal(ts) {
		t.Fatalf("raw event not mapped: %+v", req.Raw)
	}
	if len(req.Raw.Pitches) != 1 || req.Raw.Pitches[0].Velocity != 88.5 || req.Raw.Pitches[0].Seq != 1 {
		t.Fatalf("pitches not mapped: %+v", req.Raw.Pitches)
	}
	if len(req.Observations) != 1 {
		t.Fatalf("observations not mapped: %+v", req.Observations)
	}
	obs := req.Observations[0]
	if obs.MomentID != "ev-1" {
		t.Errorf("observation not stamped with the moment id: %q", obs.MomentID)
	}
	if obs.Source != model.SourceFan {
		t.Errorf("observation source %q, want %q", obs.Source, model.SourceFan)
	}
	if obs.Offset != 90*time.Second {
		t.Errorf("observation offset %v, want %v", obs.Offset, 90*time.Second)
	}
}

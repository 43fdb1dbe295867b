package replay

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/highleverage/momentum/internal/adapters/statfeed"
)

// Roster and history shape constants.
const (
	minAppearances   = 40
	appearanceJitter = 40
	holdoutPeriods   = 12
	baseSkillMin     = 0.200
	baseSkillRange   = 0.140
	appearanceNoise  = 0.040
	slumpShare       = 0.25
	slumpDip         = 0.030
	slumpRecentGames = 5
	minSeasons       = 0.3
	seasonsRange     = 12.0
)

// Momentum carry-over into the held-out series. Each signed win-probability
// swing a player was part of nudges their post-cutoff production, so realized
// deltas correlate with scored impact instead of being pure noise.
const (
	momentumKickScale = 0.15
	momentumKickCap   = 0.06
)

// Outcome distribution boundaries for a d100 roll.
const (
	rollHit        = 25
	rollHomeRun    = 40
	rollWalk       = 50
	rollStrikeout  = 65
	rollDoublePlay = 75
	rollOut        = 85
	rollBlownSave  = 90
	rollGrandSlam  = 95
)

// player is one synthetic roster entry.
type player struct {
	id      string
	skill   float64 // latent production mean
	seasons float64
	slump   bool
}

// newRoster creates n players with ids prefix-001..prefix-n and latent
// skills, service times, and slump flags drawn from the rng.
func newRoster(rng *rand.Rand, prefix string, n int) []player {
	roster := make([]player, n)
	for i := range roster {
		roster[i] = player{
			id:      fmt.Sprintf("%s-%03d", prefix, i+1),
			skill:   baseSkillMin + rng.Float64()*baseSkillRange,
			seasons: minSeasons + rng.Float64()*seasonsRange,
			slump:   rng.Float64() < slumpShare,
		}
	}
	return roster
}

// generateSeason builds the synthetic rosters, their appearance histories,
// the pivotal moments, and the held-out outcome series of one replay run.
// The same seed reproduces the same season apart from the uuid event ids.
func generateSeason(ctx context.Context, config *Config, stats *Stats) (statfeed.Feed, []Event, error) {
	log.Printf("⚾ Generating %d moments for %d batters and %d pitchers (seed %d)...",
		config.Moments, config.Batters, config.Pitchers, config.Seed)

	rng := rand.New(rand.NewSource(config.Seed))
	seasonStart := time.Date(time.Now().UTC().Year(), time.April, 1, 19, 0, 0, 0, time.UTC)
	cutoff := seasonStart.AddDate(0, 3, 0)

	batters := newRoster(rng, "b", config.Batters)
	pitchers := newRoster(rng, "p", config.Pitchers)

	// Appearance histories walk back one game per day from the cutoff, in
	// roster order, so they come out of the shared rng deterministically.
	histories := make(map[string][]statfeed.Sample, len(batters)+len(pitchers))
	for _, p := range append(append([]player{}, batters...), pitchers...) {
		histories[p.id] = history(rng, p, cutoff)
	}

	// Moments are generated concurrently over index ranges. Every worker owns
	// its own seeded rng, so the season content does not depend on scheduling.
	events := make([]Event, config.Moments)
	workerCount := minInt(config.Workers, config.Moments)
	if workerCount < 1 {
		workerCount = 1
	}
	eventsPerWorker := config.Moments / workerCount

	var wg sync.WaitGroup
	for worker := 0; worker < workerCount; worker++ {
		start := worker * eventsPerWorker
		end := start + eventsPerWorker
		if worker == workerCount-1 {
			end = config.Moments // Last worker gets remaining moments
		}

		wg.Add(1)
		go func(workerID, start, end int) {
			defer wg.Done()

			wrng := rand.New(rand.NewSource(config.Seed + int64(workerID) + 1))
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					return
				default:
					events[i] = generateMoment(wrng, batters, pitchers, cutoff, i)
				}
			}
		}(worker, start, end)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return statfeed.Feed{}, nil, fmt.Errorf("context cancelled during moment generation: %w", err)
	}

	// Held-out series continue each player's stream past the cutoff, nudged
	// by the momentum of the moments they were part of.
	kicks := momentumKicks(events)
	feed := statfeed.Feed{Cutoff: cutoff}
	for _, p := range append(append([]player{}, batters...), pitchers...) {
		feed.Players = append(feed.Players, statfeed.PlayerFeed{
			PlayerID: p.id,
			Seasons:  p.seasons,
			History:  histories[p.id],
			Holdout:  holdout(rng, p, kicks[p.id]),
		})
	}

	stats.MomentsGenerated = len(events)
	log.Printf("✅ Generated %d moments and a %d-player stat feed", len(events), len(feed.Players))

	return feed, events, nil
}

// history produces a player's dated appearance log, newest last, ending the
// day before the cutoff. Slumping players dip over their most recent games.
func history(rng *rand.Rand, p player, cutoff time.Time) []statfeed.Sample {
	n := minAppearances + rng.Intn(appearanceJitter)
	samples := make([]statfeed.Sample, n)
	for i := 0; i < n; i++ {
		// i counts back from the cutoff; index 0 is the most recent game.
		value := p.skill + (rng.Float64()*2-1)*appearanceNoise
		if p.slump && i < slumpRecentGames {
			value -= slumpDip
		}
		samples[n-1-i] = statfeed.Sample{
			Date:  cutoff.AddDate(0, 0, -(i + 1)),
			Value: value,
		}
	}
	return samples
}

// momentumKicks sums each player's signed win-probability swings across the
// season, scaled and capped, from the perspective of their own team.
func momentumKicks(events []Event) map[string]float64 {
	kicks := make(map[string]float64)
	for _, e := range events {
		delta := e.WinProbAfter - e.WinProbBefore
		battingDelta := delta
		if e.BattingTeam != "home" {
			battingDelta = -delta
		}
		kicks[e.BatterID] += battingDelta * momentumKickScale
		kicks[e.PitcherID] -= battingDelta * momentumKickScale
	}
	for id, k := range kicks {
		if k > momentumKickCap {
			kicks[id] = momentumKickCap
		} else if k < -momentumKickCap {
			kicks[id] = -momentumKickCap
		}
	}
	return kicks
}

// holdout produces the post-cutoff series the predictions settle against.
func holdout(rng *rand.Rand, p player, kick float64) []float64 {
	values := make([]float64, holdoutPeriods)
	for i := range values {
		values[i] = p.skill + kick + (rng.Float64()*2-1)*appearanceNoise
	}
	return values
}

// generateMoment creates one pivotal play. The declared outcome, the score
// transition, and the win-probability swing are kept mutually consistent so
// every generated event passes moment validation.
func generateMoment(rng *rand.Rand, batters, pitchers []player, cutoff time.Time, index int) Event {
	batter := batters[rng.Intn(len(batters))]
	pitcher := pitchers[rng.Intn(len(pitchers))]

	battingTeam := "away"
	if rng.Intn(2) == 0 {
		battingTeam = "home"
	}
	half := "top"
	if battingTeam == "home" {
		half = "bottom"
	}
	inning := 6 + rng.Intn(4)
	phase := "regular"
	if rng.Intn(100) < 15 {
		phase = "postseason"
	}

	battingBefore := rng.Intn(6)
	fieldingBefore := rng.Intn(6)

	var (
		outcome   string
		gained    int
		direction float64 // +1 favors the batting team, -1 the defense
		swingMin  float64
		swingMax  float64
	)
	switch roll := rng.Intn(100); {
	case roll < rollHit:
		outcome, gained, direction, swingMin, swingMax = "hit", rng.Intn(2), 1, 0.03, 0.12
	case roll < rollHomeRun:
		outcome, gained, direction, swingMin, swingMax = "home_run", 1+rng.Intn(3), 1, 0.15, 0.35
	case roll < rollWalk:
		outcome, gained, direction, swingMin, swingMax = "walk", 0, 1, 0.02, 0.08
	case roll < rollStrikeout:
		outcome, gained, direction, swingMin, swingMax = "strikeout", 0, -1, 0.03, 0.12
	case roll < rollDoublePlay:
		outcome, gained, direction, swingMin, swingMax = "double_play", 0, -1, 0.08, 0.20
	case roll < rollOut:
		outcome, gained, direction, swingMin, swingMax = "out", 0, -1, 0.02, 0.08
	case roll < rollBlownSave:
		// The defense led; the batting side catches up or passes.
		outcome, direction, swingMin, swingMax = "blown_save", 1, 0.25, 0.45
		battingBefore = rng.Intn(4)
		fieldingBefore = battingBefore + 1 + rng.Intn(2)
		gained = fieldingBefore - battingBefore + rng.Intn(2)
	case roll < rollGrandSlam:
		outcome, gained, direction, swingMin, swingMax = "grand_slam", 4, 1, 0.25, 0.45
	default:
		// A walk-off ends it: home side batting in the bottom of the ninth,
		// tied or one down, and ahead when the play is over.
		outcome, direction = "walk_off", 1
		battingTeam, half, inning = "home", "bottom", 9
		fieldingBefore = 2 + rng.Intn(4)
		battingBefore = fieldingBefore - rng.Intn(2)
		gained = fieldingBefore - battingBefore + 1 + rng.Intn(2)
	}

	homeBefore, awayBefore := fieldingBefore, battingBefore
	homeAfter, awayAfter := fieldingBefore, battingBefore+gained
	if battingTeam == "home" {
		homeBefore, awayBefore = battingBefore, fieldingBefore
		homeAfter, awayAfter = battingBefore+gained, fieldingBefore
	}

	wpBefore := clamp(0.5+0.07*float64(homeBefore-awayBefore), 0.08, 0.92)
	homeDirection := direction
	if battingTeam != "home" {
		homeDirection = -direction
	}
	swing := swingMin + rng.Float64()*(swingMax-swingMin)
	wpAfter := clamp(wpBefore+homeDirection*swing, 0.01, 0.99)
	if outcome == "walk_off" {
		wpAfter = 1.0
	}

	e := Event{
		EventID:         uuid.New().String(),
		GameID:          fmt.Sprintf("g-%04d", index/3+1),
		Timestamp:       cutoff.Add(time.Duration(rng.Intn(72)) * time.Hour),
		Season:          cutoff.Year(),
		Phase:           phase,
		Inning:          inning,
		Half:            half,
		HomeScoreBefore: homeBefore,
		AwayScoreBefore: awayBefore,
		HomeScoreAfter:  homeAfter,
		AwayScoreAfter:  awayAfter,
		WinProbBefore:   wpBefore,
		WinProbAfter:    wpAfter,
		Outcome:         outcome,
		BattingTeam:     battingTeam,
		BatterID:        batter.id,
		PitcherID:       pitcher.id,
	}
	if outcome == "double_play" || outcome == "out" {
		e.FielderIDs = pickFielders(rng, batters, batter.id, 1+rng.Intn(2))
	}
	e.Pitches = generatePitches(rng, outcome)
	e.Observations = generateObservations(rng, batter.id, pitcher.id, direction)
	return e
}

// pickFielders credits n defenders on an out. Fielders come from the rostered
// position players so they carry appearance histories too; the batter is
// excluded from his own put-out.
func pickFielders(rng *rand.Rand, roster []player, batterID string, n int) []string {
	if len(roster) <= n {
		return nil
	}
	ids := make([]string, 0, n)
	seen := map[string]bool{batterID: true}
	for len(ids) < n {
		id := roster[rng.Intn(len(roster))].id
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// generatePitches attaches a strictly ordered at-bat sequence to some
// moments; the final pitch result agrees with the outcome.
func generatePitches(rng *rand.Rand, outcome string) []Pitch {
	if rng.Float64() >= 0.6 {
		return nil
	}
	types := []string{"fastball", "slider", "curveball", "changeup", "sinker", "cutter"}
	mid := []string{"ball", "called_strike", "swinging_strike", "foul"}

	n := 1 + rng.Intn(6)
	pitches := make([]Pitch, n)
	for i := range pitches {
		result := mid[rng.Intn(len(mid))]
		if i == n-1 {
			switch outcome {
			case "strikeout":
				result = "swinging_strike"
			case "walk":
				result = "ball"
			default:
				result = "in_play"
			}
		}
		pitches[i] = Pitch{
			Seq:      i + 1,
			Type:     types[rng.Intn(len(types))],
			Velocity: 86 + rng.Float64()*15,
			Result:   result,
		}
	}
	return pitches
}

// generateObservations fabricates sentiment readings whose polarity leans
// with each player's side of the swing. Some moments carry none, exercising
// the no-sentiment path downstream.
func generateObservations(rng *rand.Rand, batterID, pitcherID string, direction float64) []Observation {
	if rng.Float64() >= 0.85 {
		return nil
	}
	sources := []string{"social", "social", "fan", "fan", "media"}

	n := 1 + rng.Intn(4)
	obs := make([]Observation, n)
	for i := range obs {
		playerID, sign := batterID, direction
		if rng.Float64() < 0.4 {
			playerID, sign = pitcherID, -direction
		}
		polarity := clamp(sign*(0.3+rng.Float64()*0.4)+(rng.Float64()-0.5)*0.3, -1, 1)
		obs[i] = Observation{
			PlayerID:      playerID,
			Source:        sources[rng.Intn(len(sources))],
			Polarity:      polarity,
			Volume:        10 + rng.Float64()*490,
			OffsetSeconds: -1800 + rng.Float64()*9000,
		}
	}
	return obs
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// minInt returns the minimum of two integers.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

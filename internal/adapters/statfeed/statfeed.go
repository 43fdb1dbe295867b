// Package statfeed provides a player stat feed backed by a prepared data
// file. One feed serves both pipeline collaborators: appearance histories for
// context enrichment and held-out post-moment series for settling
// predictions. The split point is the feed's cutoff: everything dated before
// it is history, everything after it is outcome data.
package statfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/highleverage/momentum/internal/domain/model"
)

// Sample is one dated production value of a player's appearance log. Higher
// values always mean better play, for pitchers as well as batters.
type Sample struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// PlayerFeed is the complete stat line of one player: service time, the
// appearance history before the cutoff, and the held-out series after it.
type PlayerFeed struct {
	PlayerID string    `json:"player_id"`
	Seasons  float64   `json:"seasons"`
	History  []Sample  `json:"history"`
	Holdout  []float64 `json:"holdout,omitempty"`
}

// Feed is the on-disk stat feed format.
type Feed struct {
	Cutoff  time.Time    `json:"cutoff"`
	Players []PlayerFeed `json:"players"`
}

// Store serves a loaded feed as both a history source and an outcome source.
// It is immutable after construction and safe for concurrent use.
type Store struct {
	players map[string]PlayerFeed
}

// NewStore indexes a feed for lookup. Each player's history is sorted by
// date; the input is not modified.
func NewStore(feed Feed) *Store {
	players := make(map[string]PlayerFeed, len(feed.Players))
	for _, pf := range feed.Players {
		history := make([]Sample, len(pf.History))
		copy(history, pf.History)
		sort.Slice(history, func(i, j int) bool {
			return history[i].Date.Before(history[j].Date)
		})
		pf.History = history
		players[pf.PlayerID] = pf
	}
	return &Store{players: players}
}

// Load reads a feed file and indexes it.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFeed, err)
	}
	var feed Feed
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrLoadFeed, path, err)
	}
	return NewStore(feed), nil
}

// Players returns the number of players the feed covers.
func (s *Store) Players() int {
	return len(s.players)
}

// PerformanceLog returns up to limit appearances strictly before the given
// time, most recent first. An unknown player has an empty log; the gap
// policy downstream decides what that means.
func (s *Store) PerformanceLog(ctx context.Context, playerID string, before time.Time, limit int) ([]model.Appearance, error) {
	pf, ok := s.players[playerID]
	if !ok || limit <= 0 {
		return nil, nil
	}

	// First index at or after the requested time; everything below it counts.
	idx := sort.Search(len(pf.History), func(i int) bool {
		return !pf.History[i].Date.Before(before)
	})

	n := idx
	if n > limit {
		n = limit
	}
	log := make([]model.Appearance, 0, n)
	for i := idx - 1; i >= 0 && len(log) < limit; i-- {
		log = append(log, model.Appearance{
			Date:  pf.History[i].Date,
			Value: pf.History[i].Value,
		})
	}
	return log, nil
}

// CareerSpan reports the player's service time and logged appearance count.
func (s *Store) CareerSpan(ctx context.Context, playerID string) (model.CareerSpan, error) {
	pf, ok := s.players[playerID]
	if !ok {
		return model.CareerSpan{}, nil
	}
	return model.CareerSpan{
		Seasons:     pf.Seasons,
		Appearances: len(pf.History),
	}, nil
}

// ObservedTrajectory returns up to horizon held-out values for the player.
// The feed carries one held-out series per player, so every prediction for a
// player settles against the same observed values regardless of moment.
func (s *Store) ObservedTrajectory(ctx context.Context, momentID, playerID string, horizon int) ([]float64, error) {
	pf, ok := s.players[playerID]
	if !ok || horizon <= 0 {
		return nil, nil
	}
	n := len(pf.Holdout)
	if n > horizon {
		n = horizon
	}
	obs := make([]float64, n)
	copy(obs, pf.Holdout[:n])
	return obs, nil
}

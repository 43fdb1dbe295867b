// Package moment validates raw play-by-play events into canonical moment
// records. Building is a pure transform: no I/O, no retries, and a rejected
// event never produces a partial moment.
package moment

import (
	"fmt"
	"math"
	"strings"

	"github.com/highleverage/momentum/internal/domain/model"
)

// Build validates raw into a Moment. Problems are reported as a
// MalformedError carrying the highest-precedence kind found: missing fields
// first, then out-of-range values, then inconsistent state. All offending
// fields of that kind are listed.
func Build(raw model.RawEvent) (model.Moment, error) {
	if fields := missingFields(raw); len(fields) > 0 {
		return model.Moment{}, &MalformedError{
			Kind:   KindMissingField,
			Fields: fields,
			Reason: "required fields absent",
		}
	}
	if fields := outOfRangeFields(raw); len(fields) > 0 {
		return model.Moment{}, &MalformedError{
			Kind:   KindOutOfRange,
			Fields: fields,
			Reason: "values outside allowed ranges",
		}
	}
	if fields := inconsistentFields(raw); len(fields) > 0 {
		return model.Moment{}, &MalformedError{
			Kind:   KindInconsistentState,
			Fields: fields,
			Reason: "event state does not add up",
		}
	}

	batting := model.TeamSide(raw.BattingTeam)
	m := model.Moment{
		ID:              strings.TrimSpace(raw.EventID),
		GameID:          strings.TrimSpace(raw.GameID),
		Timestamp:       raw.Timestamp,
		Season:          raw.Season,
		Phase:           model.SeasonPhase(raw.Phase),
		Inning:          raw.Inning,
		Half:            model.InningHalf(raw.Half),
		HomeScoreBefore: raw.HomeScoreBefore,
		AwayScoreBefore: raw.AwayScoreBefore,
		HomeScoreAfter:  raw.HomeScoreAfter,
		AwayScoreAfter:  raw.AwayScoreAfter,
		WinProbBefore:   raw.WinProbBefore,
		WinProbAfter:    raw.WinProbAfter,
		Outcome:         model.OutcomeType(raw.Outcome),
		BattingTeam:     batting,
	}

	fielding := m.FieldingTeam()
	m.Participants = append(m.Participants, model.Participant{
		PlayerID: strings.TrimSpace(raw.BatterID),
		Role:     model.RoleBatter,
		Team:     batting,
	})
	m.Participants = append(m.Participants, model.Participant{
		PlayerID: strings.TrimSpace(raw.PitcherID),
		Role:     model.RolePitcher,
		Team:     fielding,
	})
	for _, id := range raw.FielderIDs {
		m.Participants = append(m.Participants, model.Participant{
			PlayerID: strings.TrimSpace(id),
			Role:     model.RoleFielder,
			Team:     fielding,
		})
	}
	return m, nil
}

func missingFields(raw model.RawEvent) []string {
	var fields []string
	if strings.TrimSpace(raw.EventID) == "" {
		fields = append(fields, "event_id")
	}
	if strings.TrimSpace(raw.GameID) == "" {
		fields = append(fields, "game_id")
	}
	if raw.Timestamp.IsZero() {
		fields = append(fields, "timestamp")
	}
	if strings.TrimSpace(raw.Phase) == "" {
		fields = append(fields, "phase")
	}
	if strings.TrimSpace(raw.Half) == "" {
		fields = append(fields, "half")
	}
	if strings.TrimSpace(raw.Outcome) == "" {
		fields = append(fields, "outcome")
	}
	if strings.TrimSpace(raw.BattingTeam) == "" {
		fields = append(fields, "batting_team")
	}
	if strings.TrimSpace(raw.BatterID) == "" {
		fields = append(fields, "batter_id")
	}
	if strings.TrimSpace(raw.PitcherID) == "" {
		fields = append(fields, "pitcher_id")
	}
	for i, id := range raw.FielderIDs {
		if strings.TrimSpace(id) == "" {
			fields = append(fields, fmt.Sprintf("fielder_ids[%d]", i))
		}
	}
	return fields
}

func outOfRangeFields(raw model.RawEvent) []string {
	var fields []string
	if !knownPhase(raw.Phase) {
		fields = append(fields, "phase")
	}
	if !knownHalf(raw.Half) {
		fields = append(fields, "half")
	}
	if !knownOutcome(raw.Outcome) {
		fields = append(fields, "outcome")
	}
	if !knownSide(raw.BattingTeam) {
		fields = append(fields, "batting_team")
	}
	if raw.Inning < 1 {
		fields = append(fields, "inning")
	}
	if !probability(raw.WinProbBefore) {
		fields = append(fields, "win_prob_before")
	}
	if !probability(raw.WinProbAfter) {
		fields = append(fields, "win_prob_after")
	}
	if d := raw.WinProbAfter - raw.WinProbBefore; math.IsNaN(d) || d < -1 || d > 1 {
		fields = append(fields, "delta_wp")
	}
	if raw.HomeScoreBefore < 0 {
		fields = append(fields, "home_score_before")
	}
	if raw.AwayScoreBefore < 0 {
		fields = append(fields, "away_score_before")
	}
	if raw.HomeScoreAfter < 0 {
		fields = append(fields, "home_score_after")
	}
	if raw.AwayScoreAfter < 0 {
		fields = append(fields, "away_score_after")
	}
	for i, p := range raw.Pitches {
		if p.Velocity < 0 {
			fields = append(fields, fmt.Sprintf("pitches[%d].velocity", i))
		}
	}
	return fields
}

func inconsistentFields(raw model.RawEvent) []string {
	var fields []string
	if raw.HomeScoreAfter < raw.HomeScoreBefore {
		fields = append(fields, "home_score_after")
	}
	if raw.AwayScoreAfter < raw.AwayScoreBefore {
		fields = append(fields, "away_score_after")
	}
	for i := 1; i < len(raw.Pitches); i++ {
		if raw.Pitches[i].Seq <= raw.Pitches[i-1].Seq {
			fields = append(fields, fmt.Sprintf("pitches[%d].seq", i))
		}
	}
	fields = append(fields, outcomeConflicts(raw)...)
	return fields
}

// outcomeConflicts checks that the declared outcome agrees with the score
// transition. Kept to relations that hold for every legal play: a strikeout
// or double play never scores the batting team, a home run always does, a
// grand slam scores exactly four, a walk-off leaves the home side batting and
// ahead, a blown save erases the defense's lead.
func outcomeConflicts(raw model.RawEvent) []string {
	battingBefore, battingAfter := raw.AwayScoreBefore, raw.AwayScoreAfter
	fieldingBefore, fieldingAfter := raw.HomeScoreBefore, raw.HomeScoreAfter
	if raw.BattingTeam == string(model.HomeSide) {
		battingBefore, battingAfter = raw.HomeScoreBefore, raw.HomeScoreAfter
		fieldingBefore, fieldingAfter = raw.AwayScoreBefore, raw.AwayScoreAfter
	}
	gained := battingAfter - battingBefore

	var fields []string
	switch model.OutcomeType(raw.Outcome) {
	case model.OutcomeHomeRun:
		if gained < 1 {
			fields = append(fields, "outcome")
		}
	case model.OutcomeGrandSlam:
		if gained != 4 {
			fields = append(fields, "outcome")
		}
	case model.OutcomeWalkOff:
		if gained < 1 || raw.BattingTeam != string(model.HomeSide) ||
			raw.Half != string(model.BottomHalf) || battingAfter <= fieldingAfter {
			fields = append(fields, "outcome")
		}
	case model.OutcomeBlownSave:
		if gained < 1 || fieldingBefore <= battingBefore || battingAfter < fieldingAfter {
			fields = append(fields, "outcome")
		}
	case model.OutcomeStrikeout, model.OutcomeDoublePlay:
		if gained != 0 {
			fields = append(fields, "outcome")
		}
	}
	return fields
}

func knownPhase(s string) bool {
	switch model.SeasonPhase(s) {
	case model.RegularSeason, model.Postseason:
		return true
	}
	return false
}

func knownHalf(s string) bool {
	switch model.InningHalf(s) {
	case model.TopHalf, model.BottomHalf:
		return true
	}
	return false
}

func knownOutcome(s string) bool {
	switch model.OutcomeType(s) {
	case model.OutcomeHomeRun, model.OutcomeGrandSlam, model.OutcomeWalkOff,
		model.OutcomeBlownSave, model.OutcomeHit, model.OutcomeWalk,
		model.OutcomeStrikeout, model.OutcomeOut, model.OutcomeDoublePlay:
		return true
	}
	return false
}

func knownSide(s string) bool {
	switch model.TeamSide(s) {
	case model.HomeSide, model.AwaySide:
		return true
	}
	return false
}

func probability(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= 1
}

// Package model contains domain entities passed between pipeline stages.
package model

import "time"

// TeamSide identifies which bench a team or participant belongs to.
type TeamSide string

const (
	HomeSide TeamSide = "home"
	AwaySide TeamSide = "away"
)

// SeasonPhase distinguishes regular-season play from the postseason.
type SeasonPhase string

const (
	RegularSeason SeasonPhase = "regular"
	Postseason    SeasonPhase = "postseason"
)

// InningHalf marks which half of the inning a moment happened in.
type InningHalf string

const (
	TopHalf    InningHalf = "top"
	BottomHalf InningHalf = "bottom"
)

// OutcomeType enumerates the play outcomes the builder understands.
type OutcomeType string

const (
	OutcomeHomeRun    OutcomeType = "home_run"
	OutcomeGrandSlam  OutcomeType = "grand_slam"
	OutcomeWalkOff    OutcomeType = "walk_off"
	OutcomeBlownSave  OutcomeType = "blown_save"
	OutcomeHit        OutcomeType = "hit"
	OutcomeWalk       OutcomeType = "walk"
	OutcomeStrikeout  OutcomeType = "strikeout"
	OutcomeOut        OutcomeType = "out"
	OutcomeDoublePlay OutcomeType = "double_play"
)

// Role is a participant's function in the play.
type Role string

const (
	RoleBatter  Role = "batter"
	RolePitcher Role = "pitcher"
	RoleFielder Role = "fielder"
)

// Side records whether the win-probability swing helped or hurt a participant.
type Side string

const (
	SideBeneficiary Side = "beneficiary"
	SideAdverse     Side = "adverse"
)

// Pitch is one entry of the optional pitch sequence attached to a raw event.
type Pitch struct {
	Seq      int     // position in the at-bat, strictly increasing
	Type     string  // e.g., "fastball", "slider"
	Velocity float64 // mph, zero when untracked
	Result   string  // e.g., "ball", "swinging_strike", "in_play"
}

// RawEvent is the wire payload describing a candidate pivotal play, exactly as
// submitted. The moment builder validates it into a Moment.
type RawEvent struct {
	EventID         string // unique id for idempotency
	GameID          string
	Timestamp       time.Time
	Season          int
	Phase           string // "regular" or "postseason"
	Inning          int
	Half            string // "top" or "bottom"
	HomeScoreBefore int
	AwayScoreBefore int
	HomeScoreAfter  int
	AwayScoreAfter  int
	WinProbBefore   float64 // home-team win probability before the play
	WinProbAfter    float64 // home-team win probability after the play
	Outcome         string
	BattingTeam     string // "home" or "away"
	BatterID        string
	PitcherID       string
	FielderIDs      []string
	Pitches         []Pitch // optional, ordered
}

// Participant ties a player to a moment in a specific role.
type Participant struct {
	PlayerID string
	Role     Role
	Team     TeamSide
}

// Moment is the canonical record of a single pivotal play. The builder emits
// it once and every later stage treats it as immutable.
type Moment struct {
	ID              string
	GameID          string
	Timestamp       time.Time
	Season          int
	Phase           SeasonPhase
	Inning          int
	Half            InningHalf
	HomeScoreBefore int
	AwayScoreBefore int
	HomeScoreAfter  int
	AwayScoreAfter  int
	WinProbBefore   float64
	WinProbAfter    float64
	Outcome         OutcomeType
	BattingTeam     TeamSide
	Participants    []Participant
}

// DeltaWP returns the win-probability swing from the home team's perspective.
// Always within [-1, 1] for a built Moment.
func (m Moment) DeltaWP() float64 {
	return m.WinProbAfter - m.WinProbBefore
}

// SignedDeltaWP returns the swing as seen from the given side.
func (m Moment) SignedDeltaWP(side TeamSide) float64 {
	if side == AwaySide {
		return -m.DeltaWP()
	}
	return m.DeltaWP()
}

// FieldingTeam returns the side on defense when the moment happened.
func (m Moment) FieldingTeam() TeamSide {
	if m.BattingTeam == HomeSide {
		return AwaySide
	}
	return HomeSide
}

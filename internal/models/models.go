package models

import (
	"fmt"
	"time"
)

// MarketType identifies a bettable market on a single game.
type MarketType string

const (
	MarketMoneyline MarketType = "moneyline"
	MarketRunline   MarketType = "runline"
	MarketTotal     MarketType = "total"
)

// Side is the recommended side of a market.
type Side string

const (
	SideHome  Side = "home"
	SideAway  Side = "away"
	SideOver  Side = "over"
	SideUnder Side = "under"
)

// Opposite returns the opposing side within the same market.
func (s Side) Opposite() Side {
	switch s {
	case SideHome:
		return SideAway
	case SideAway:
		return SideHome
	case SideOver:
		return SideUnder
	case SideUnder:
		return SideOver
	}
	return s
}

// Phase is the threshold-strictness stage a strategy sits in. Transitions
// are monotonic: bootstrap -> learning -> calibration -> optimization.
type Phase int

const (
	PhaseBootstrap Phase = iota
	PhaseLearning
	PhaseCalibration
	PhaseOptimization
)

func (p Phase) String() string {
	switch p {
	case PhaseBootstrap:
		return "bootstrap"
	case PhaseLearning:
		return "learning"
	case PhaseCalibration:
		return "calibration"
	case PhaseOptimization:
		return "optimization"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// PhaseForSample maps an accumulated sample size onto the phase ladder.
func PhaseForSample(sampleSize int) Phase {
	switch {
	case sampleSize <= 10:
		return PhaseBootstrap
	case sampleSize <= 30:
		return PhaseLearning
	case sampleSize <= 100:
		return PhaseCalibration
	default:
		return PhaseOptimization
	}
}

// Signal is one strategy's detected, scored opportunity for one event/market.
// Immutable once created; superseded signals are retained for audit.
type Signal struct {
	ID         string     `json:"id" db:"id"`
	StrategyID string     `json:"strategy_id" db:"strategy_id"`
	LogicID    string     `json:"logic_id" db:"logic_id"`
	EventID    string     `json:"event_id" db:"event_id"`
	Market     MarketType `json:"market_type" db:"market_type"`
	Side       Side       `json:"side" db:"side"`
	Magnitude  float64    `json:"magnitude" db:"magnitude"`
	Confidence int        `json:"confidence" db:"confidence"`
	Source     string     `json:"source" db:"source"`
	Book       string     `json:"book" db:"book"`
	DetectedAt time.Time  `json:"detected_at" db:"detected_at"`
}

// Validate rejects malformed signals before they reach the ensemble.
func (s Signal) Validate() error {
	if s.StrategyID == "" {
		return &ValidationError{Field: "strategy_id", Reason: "empty"}
	}
	if s.EventID == "" {
		return &ValidationError{Field: "event_id", Reason: "empty"}
	}
	switch s.Market {
	case MarketMoneyline, MarketRunline, MarketTotal:
	default:
		return &ValidationError{Field: "market_type", Reason: fmt.Sprintf("unknown market %q", s.Market)}
	}
	switch s.Side {
	case SideHome, SideAway, SideOver, SideUnder:
	default:
		return &ValidationError{Field: "side", Reason: fmt.Sprintf("unknown side %q", s.Side)}
	}
	if s.Confidence < 0 || s.Confidence > 100 {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%d outside [0,100]", s.Confidence)}
	}
	if s.DetectedAt.IsZero() {
		return &ValidationError{Field: "detected_at", Reason: "zero timestamp"}
	}
	return nil
}

// StrategyProfile carries a strategy's accumulated historical performance.
// Mutated only by the backtesting engine and the threshold manager.
type StrategyProfile struct {
	StrategyID      string  `json:"strategy_id" db:"strategy_id"`
	Phase           Phase   `json:"phase" db:"phase"`
	SampleSize      int     `json:"sample_size" db:"sample_size"`
	WinRate         float64 `json:"win_rate" db:"win_rate"`
	ROIPerUnit      float64 `json:"roi_per_unit" db:"roi_per_unit"`
	ActiveThreshold float64 `json:"active_threshold" db:"active_threshold"`
}

// MarketLine is one book's posted line for one market at snapshot time.
type MarketLine struct {
	Market      MarketType `json:"market_type" db:"market_type"`
	Book        string     `json:"book" db:"book"`
	Line        float64    `json:"line" db:"line"`
	OpeningLine float64    `json:"opening_line" db:"opening_line"`
}

// EventContext describes one scheduled game plus its market-line snapshot.
// Produced by the upstream data collaborator; read-only to the engine.
type EventContext struct {
	EventID        string       `json:"event_id" db:"event_id"`
	HomeTeam       string       `json:"home_team" db:"home_team"`
	AwayTeam       string       `json:"away_team" db:"away_team"`
	ScheduledStart time.Time    `json:"scheduled_start" db:"scheduled_start"`
	Lines          []MarketLine `json:"lines"`
}

// LineFor returns the first snapshot line for a market, false when absent.
func (e EventContext) LineFor(market MarketType) (MarketLine, bool) {
	for _, l := range e.Lines {
		if l.Market == market {
			return l, true
		}
	}
	return MarketLine{}, false
}

// RawSplitRow is one observed betting-split row from the upstream source:
// ticket percentage vs money percentage on one side of one market.
type RawSplitRow struct {
	EventID     string     `json:"event_id" db:"event_id"`
	Market      MarketType `json:"market_type" db:"market_type"`
	Side        Side       `json:"side" db:"side"`
	BetPct      float64    `json:"bet_pct" db:"bet_pct"`
	MoneyPct    float64    `json:"money_pct" db:"money_pct"`
	Line        float64    `json:"line" db:"line"`
	OpeningLine float64    `json:"opening_line" db:"opening_line"`
	Book        string     `json:"book" db:"book"`
	Source      string     `json:"source" db:"source"`
	CapturedAt  time.Time  `json:"captured_at" db:"captured_at"`
}

// Outcome is the recorded final result of a completed game.
type Outcome struct {
	EventID     string    `json:"event_id" db:"event_id"`
	HomeScore   int       `json:"home_score" db:"home_score"`
	AwayScore   int       `json:"away_score" db:"away_score"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

// Covered reports whether a pick on the given market/side/line won.
// Pushes return false; a push is not a win under the fixed-price ROI
// convention used by the backtester.
func (o Outcome) Covered(market MarketType, side Side, line float64) bool {
	diff := float64(o.HomeScore - o.AwayScore)
	total := float64(o.HomeScore + o.AwayScore)
	switch market {
	case MarketMoneyline:
		return (side == SideHome && diff > 0) || (side == SideAway && diff < 0)
	case MarketRunline:
		switch side {
		case SideHome:
			return diff+line > 0
		case SideAway:
			return -diff+line > 0
		}
	case MarketTotal:
		switch side {
		case SideOver:
			return total > line
		case SideUnder:
			return total < line
		}
	}
	return false
}

// SampleSizeCategory buckets backtest trial counts by statistical weight.
type SampleSizeCategory string

const (
	SampleInsufficient SampleSizeCategory = "INSUFFICIENT"
	SampleBasic        SampleSizeCategory = "BASIC"
	SampleReliable     SampleSizeCategory = "RELIABLE"
	SampleRobust       SampleSizeCategory = "ROBUST"
)

// CategoryForTrials maps a trial count to its sample-size category.
func CategoryForTrials(trials int) SampleSizeCategory {
	switch {
	case trials < 10:
		return SampleInsufficient
	case trials < 30:
		return SampleBasic
	case trials < 100:
		return SampleReliable
	default:
		return SampleRobust
	}
}

// BacktestResult is one historical evaluation of one strategy. Append-only,
// one per (strategy_id, evaluation_date).
type BacktestResult struct {
	StrategyID      string             `json:"strategy_id" db:"strategy_id"`
	EvaluationDate  time.Time          `json:"evaluation_date" db:"evaluation_date"`
	TotalTrials     int                `json:"total_trials" db:"total_trials"`
	Wins            int                `json:"wins" db:"wins"`
	WinRate         float64            `json:"win_rate" db:"win_rate"`
	ROIPer100       float64            `json:"roi_per_100" db:"roi_per_100"`
	Category        SampleSizeCategory `json:"sample_size_category" db:"sample_size_category"`
	ConfidenceLevel float64            `json:"confidence_level" db:"confidence_level"`
}

// RecommendationBundle is the resolver's final output for one event/market:
// exactly one winning signal, with suppressed alternates kept for audit.
type RecommendationBundle struct {
	EventID      string     `json:"event_id"`
	Market       MarketType `json:"market_type"`
	Winner       Signal     `json:"winning_signal"`
	Consensus    []string   `json:"consensus_strategies"`
	Conflicting  []string   `json:"conflicting_strategies"`
	QualityScore float64    `json:"quality_score"`
	Alternates   []Signal   `json:"alternates,omitempty"`
}

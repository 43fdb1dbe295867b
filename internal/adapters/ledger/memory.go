package ledger

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/highleverage/momentum/internal/domain/model"
	"github.com/highleverage/momentum/internal/domain/types"
	"github.com/highleverage/momentum/pkg/metrics"
)

// Treap-based, in-memory Ledger implementation.
//
// Shift ordering: |score| DESC, then momentID ASC, then playerID ASC
// (deterministic). The BST comparator treats "less" as ranking earlier,
// so in-order traversal yields the shift ranking from largest swing down.
// Results are append-once, which keeps the treap insert-only.

// scoreScale controls fixed-point scaling from float64. Composed scores are
// clamped to [-100, 100], so the scaled magnitude always fits int64.
const scoreScale = 1_000_000_000_000 // 12 decimal places

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	if math.IsNaN(x) {
		return 0
	}
	return scoreFP(math.Round(x * scoreScale))
}

// shiftKey identifies one (moment, player) pair.
type shiftKey struct {
	momentID string
	playerID string
}

// treap node
type node struct {
	key       shiftKey
	magnitude scoreFP
	prio      uint64
	left      *node
	right     *node
	size      int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aMag, aKey) ranks earlier than (bMag, bKey),
// meaning a larger swing or the same swing with a smaller key.
func less(aMag scoreFP, aKey shiftKey, bMag scoreFP, bKey shiftKey) bool {
	if aMag != bMag {
		return aMag > bMag
	}
	if aKey.momentID != bKey.momentID {
		return aKey.momentID < bKey.momentID
	}
	return aKey.playerID < bKey.playerID
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

// magnitudeToPriority keeps larger shifts near the treap root so top-N
// reads touch few nodes. The offset makes every priority positive.
func magnitudeToPriority(mag scoreFP) uint64 {
	const offset = uint64(1) << 63
	return uint64(mag) + offset
}

func insert(n *node, key shiftKey, mag scoreFP) *node {
	if n == nil {
		return &node{key: key, magnitude: mag, prio: magnitudeToPriority(mag), size: 1}
	}
	if less(mag, key, n.magnitude, n.key) {
		n.left = insert(n.left, key, mag)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, key, mag)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// collectTopN appends up to limit shifts in rank order (largest swings first).
func collectTopN(n *node, limit int, results map[shiftKey]model.MSSResult, out *[]types.RankedShift) {
	if n == nil || len(*out) >= limit {
		return
	}

	collectTopN(n.left, limit, results, out)

	if len(*out) < limit {
		if res, ok := results[n.key]; ok {
			*out = append(*out, types.RankedShift{
				MomentID: res.MomentID,
				PlayerID: res.PlayerID,
				Score:    res.Score,
			})
		}
	}

	if len(*out) < limit {
		collectTopN(n.right, limit, results, out)
	}
}

// MemoryLedger keeps all ledger state in process memory.
type MemoryLedger struct {
	mu          sync.RWMutex
	root        *node
	results     map[shiftKey]model.MSSResult
	byMoment    map[string][]string // momentID -> playerIDs in append order
	predictions map[shiftKey]model.PredictionRecord
	weights     []model.WeightSet
	byVersion   map[string]model.WeightSet
	reports     []model.CalibrationReport

	metricsUpdateInterval time.Duration

	// Background goroutine management
	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewMemoryLedger constructs an in-memory ledger with configuration options.
func NewMemoryLedger(ctx context.Context, opts ...Option) *MemoryLedger {
	l := &MemoryLedger{
		results:               make(map[shiftKey]model.MSSResult),
		byMoment:              make(map[string][]string),
		predictions:           make(map[shiftKey]model.PredictionRecord),
		byVersion:             make(map[string]model.WeightSet),
		metricsUpdateInterval: 5 * time.Second, // default metrics interval
	}

	for _, opt := range opts {
		opt(l)
	}

	l.stopChan = make(chan struct{})
	l.startMetricsUpdater(ctx)

	return l
}

// startMetricsUpdater starts a background goroutine that refreshes ledger gauges.
func (l *MemoryLedger) startMetricsUpdater(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopChan:
				return
			case <-ticker.C:
				l.updateMetrics()
			}
		}
	}()
}

// updateMetrics refreshes all ledger-related gauges.
func (l *MemoryLedger) updateMetrics() {
	l.mu.RLock()
	resultCount := len(l.results)
	predictionCount := len(l.predictions)
	pending := 0
	for _, rec := range l.predictions {
		if !rec.Settled() {
			pending++
		}
	}
	l.mu.RUnlock()

	metrics.UpdateLedgerResultsTotal(resultCount)
	metrics.UpdateLedgerPredictionsTotal(predictionCount)
	metrics.UpdateLedgerPendingPredictions(pending)
}

// Close gracefully shuts down the background goroutine.
func (l *MemoryLedger) Close() error {
	select {
	case <-l.stopChan:
		// Channel already closed
	default:
		close(l.stopChan)
	}
	l.wg.Wait()
	return nil
}

// AppendResult implements Ledger.AppendResult with O(log n) expected time.
func (l *MemoryLedger) AppendResult(ctx context.Context, res model.MSSResult) error {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerUpdateLatency(float64(latency))
	}()

	key := shiftKey{momentID: res.MomentID, playerID: res.PlayerID}

	l.mu.Lock()
	if _, ok := l.results[key]; ok {
		l.mu.Unlock()
		metrics.RecordErrorByComponent("ledger", "duplicate_result")
		return ErrDuplicate
	}
	l.results[key] = res
	l.byMoment[res.MomentID] = append(l.byMoment[res.MomentID], res.PlayerID)
	l.root = insert(l.root, key, toFixedPoint(math.Abs(res.Score)))
	total := len(l.results)
	l.mu.Unlock()

	metrics.UpdateLedgerResultsTotal(total)
	return nil
}

// Result returns the stored result for a moment and player.
func (l *MemoryLedger) Result(ctx context.Context, momentID, playerID string) (model.MSSResult, error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerQueryLatency(float64(latency))
	}()

	l.mu.RLock()
	defer l.mu.RUnlock()

	res, ok := l.results[shiftKey{momentID: momentID, playerID: playerID}]
	if !ok {
		metrics.RecordErrorByComponent("ledger", "not_found")
		return model.MSSResult{}, ErrNotFound
	}
	return res, nil
}

// ResultsForMoment returns every per-player result for a moment.
func (l *MemoryLedger) ResultsForMoment(ctx context.Context, momentID string) ([]model.MSSResult, error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerQueryLatency(float64(latency))
	}()

	l.mu.RLock()
	defer l.mu.RUnlock()

	players := l.byMoment[momentID]
	if len(players) == 0 {
		metrics.RecordErrorByComponent("ledger", "not_found")
		return nil, ErrNotFound
	}

	sorted := make([]string, len(players))
	copy(sorted, players)
	sort.Strings(sorted)

	out := make([]model.MSSResult, 0, len(sorted))
	for _, playerID := range sorted {
		if res, ok := l.results[shiftKey{momentID: momentID, playerID: playerID}]; ok {
			out = append(out, res)
		}
	}
	return out, nil
}

// TopShifts returns the n largest shifts by score magnitude.
func (l *MemoryLedger) TopShifts(ctx context.Context, n int) ([]types.RankedShift, error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerQueryLatency(float64(latency))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("ledger", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.RankedShift, 0, n)
	collectTopN(l.root, n, l.results, &out)

	assignRanks(out)
	return out, nil
}

// AppendPrediction stores a freshly issued prediction record.
func (l *MemoryLedger) AppendPrediction(ctx context.Context, rec model.PredictionRecord) error {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerUpdateLatency(float64(latency))
	}()

	key := shiftKey{momentID: rec.MomentID, playerID: rec.PlayerID}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.predictions[key]; ok {
		metrics.RecordErrorByComponent("ledger", "duplicate_prediction")
		return ErrDuplicate
	}
	l.predictions[key] = rec
	return nil
}

// Prediction returns the stored prediction for a moment and player.
func (l *MemoryLedger) Prediction(ctx context.Context, momentID, playerID string) (model.PredictionRecord, error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerQueryLatency(float64(latency))
	}()

	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.predictions[shiftKey{momentID: momentID, playerID: playerID}]
	if !ok {
		metrics.RecordErrorByComponent("ledger", "not_found")
		return model.PredictionRecord{}, ErrNotFound
	}
	return rec, nil
}

// PendingPredictions returns unsettled records ordered by moment then player.
func (l *MemoryLedger) PendingPredictions(ctx context.Context) ([]model.PredictionRecord, error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerQueryLatency(float64(latency))
	}()

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.PredictionRecord, 0)
	for _, rec := range l.predictions {
		if !rec.Settled() {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MomentID != out[j].MomentID {
			return out[i].MomentID < out[j].MomentID
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out, nil
}

// SettledPredictions returns evaluated records ordered by moment then player.
func (l *MemoryLedger) SettledPredictions(ctx context.Context) ([]model.PredictionRecord, error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerQueryLatency(float64(latency))
	}()

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.PredictionRecord, 0)
	for _, rec := range l.predictions {
		if rec.Settled() {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MomentID != out[j].MomentID {
			return out[i].MomentID < out[j].MomentID
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out, nil
}

// SettlePrediction attaches observations and metrics to a pending record.
func (l *MemoryLedger) SettlePrediction(ctx context.Context, momentID, playerID string, observed []float64, eval model.EvalMetrics) error {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerUpdateLatency(float64(latency))
	}()

	key := shiftKey{momentID: momentID, playerID: playerID}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.predictions[key]
	if !ok {
		metrics.RecordErrorByComponent("ledger", "not_found")
		return ErrNotFound
	}
	if rec.Settled() {
		metrics.RecordErrorByComponent("ledger", "already_settled")
		return ErrAlreadySettled
	}

	rec.Observed = make([]float64, len(observed))
	copy(rec.Observed, observed)
	rec.Eval = &eval
	rec.Status = model.PredictionEvaluated
	l.predictions[key] = rec
	return nil
}

// PutWeightSet stores an immutable weight version.
func (l *MemoryLedger) PutWeightSet(ctx context.Context, ws model.WeightSet) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byVersion[ws.Version]; ok {
		metrics.RecordErrorByComponent("ledger", "duplicate_weights")
		return ErrDuplicate
	}
	l.byVersion[ws.Version] = ws
	l.weights = append(l.weights, ws)
	return nil
}

// WeightSet returns the weight set stored under version.
func (l *MemoryLedger) WeightSet(ctx context.Context, version string) (model.WeightSet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ws, ok := l.byVersion[version]
	if !ok {
		metrics.RecordErrorByComponent("ledger", "not_found")
		return model.WeightSet{}, ErrNotFound
	}
	return ws, nil
}

// LatestWeightSet returns the most recently stored weight set.
func (l *MemoryLedger) LatestWeightSet(ctx context.Context) (model.WeightSet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.weights) == 0 {
		return model.WeightSet{}, ErrNoWeights
	}
	return l.weights[len(l.weights)-1], nil
}

// WeightHistory returns every stored weight set, oldest first.
func (l *MemoryLedger) WeightHistory(ctx context.Context) ([]model.WeightSet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.WeightSet, len(l.weights))
	copy(out, l.weights)
	return out, nil
}

// PutReport stores a calibration report.
func (l *MemoryLedger) PutReport(ctx context.Context, rep model.CalibrationReport) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reports = append(l.reports, rep)
	return nil
}

// LatestReport returns the most recently stored calibration report.
func (l *MemoryLedger) LatestReport(ctx context.Context) (model.CalibrationReport, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.reports) == 0 {
		return model.CalibrationReport{}, ErrNoReport
	}
	return l.reports[len(l.reports)-1], nil
}

// ResultCount returns the number of stored results.
func (l *MemoryLedger) ResultCount(ctx context.Context) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.results)
}

// PredictionCount returns the number of stored prediction records.
func (l *MemoryLedger) PredictionCount(ctx context.Context) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.predictions)
}

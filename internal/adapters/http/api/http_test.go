package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/highleverage/momentum/internal/adapters/http/api"
	"github.com/highleverage/momentum/internal/adapters/ledger"
	"github.com/highleverage/momentum/internal/domain/evaluate"
	"github.com/highleverage/momentum/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing
type mockDeduper struct {
	seen map[string]bool
}

func (m *mockDeduper) SeenAndRecord(ctx context.Context, id string) bool {
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[id] {
		return true
	}
	m.seen[id] = true
	return false
}

func (m *mockDeduper) Unrecord(ctx context.Context, id string) {
	if m.seen != nil {
		delete(m.seen, id)
	}
}

func (m *mockDeduper) Size() int64 {
	return int64(len(m.seen))
}

type mockQueue struct {
	enqueueSuccess bool
	enqueued       []model.ScoreRequest
}

func (m *mockQueue) Enqueue(ctx context.Context, req model.ScoreRequest) bool {
	if m.enqueueSuccess {
		m.enqueued = append(m.enqueued, req)
		return true
	}
	return false
}

type mockLedger struct {
	results    map[string]model.MSSResult
	byMoment   map[string][]model.MSSResult
	shifts     []api.RankedShift
	weights    map[string]model.WeightSet
	history    []model.WeightSet
	report     model.CalibrationReport
	resultErr  error
	shiftsErr  error
	weightsErr error
	reportErr  error
}

func (m *mockLedger) Result(ctx context.Context, momentID, playerID string) (model.MSSResult, error) {
	if m.resultErr != nil {
		return model.MSSResult{}, m.resultErr
	}
	res, ok := m.results[momentID+"/"+playerID]
	if !ok {
		return model.MSSResult{}, ledger.ErrNotFound
	}
	return res, nil
}

func (m *mockLedger) ResultsForMoment(ctx context.Context, momentID string) ([]model.MSSResult, error) {
	if m.resultErr != nil {
		return nil, m.resultErr
	}
	results, ok := m.byMoment[momentID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return results, nil
}

func (m *mockLedger) TopShifts(ctx context.Context, n int) ([]api.RankedShift, error) {
	if m.shiftsErr != nil {
		return nil, m.shiftsErr
	}
	if n > len(m.shifts) {
		return m.shifts, nil
	}
	return m.shifts[:n], nil
}

func (m *mockLedger) WeightSet(ctx context.Context, version string) (model.WeightSet, error) {
	if m.weightsErr != nil {
		return model.WeightSet{}, m.weightsErr
	}
	if version == "" {
		if len(m.history) == 0 {
			return model.WeightSet{}, ledger.ErrNoWeights
		}
		return m.history[len(m.history)-1], nil
	}
	ws, ok := m.weights[version]
	if !ok {
		return model.WeightSet{}, ledger.ErrNotFound
	}
	return ws, nil
}

func (m *mockLedger) WeightHistory(ctx context.Context) ([]model.WeightSet, error) {
	if m.weightsErr != nil {
		return nil, m.weightsErr
	}
	return m.history, nil
}

func (m *mockLedger) LatestReport(ctx context.Context) (model.CalibrationReport, error) {
	if m.reportErr != nil {
		return model.CalibrationReport{}, m.reportErr
	}
	return m.report, nil
}

type mockCalibrator struct {
	out evaluate.RefitOutcome
	err error
}

func (m *mockCalibrator) RefitSettled(ctx context.Context) (evaluate.RefitOutcome, error) {
	if m.err != nil {
		return evaluate.RefitOutcome{}, m.err
	}
	return m.out, nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

// Mock dependencies bundle implementing the Dependencies interface.
type mockDependencies struct {
	dedupe     *mockDeduper
	queue      *mockQueue
	led        *mockLedger
	calibrator *mockCalibrator
}

func newMockDependencies() *mockDependencies {
	return &mockDependencies{
		dedupe:     &mockDeduper{},
		queue:      &mockQueue{enqueueSuccess: true},
		led:        &mockLedger{},
		calibrator: &mockCalibrator{},
	}
}

func (m *mockDependencies) SeenAndRecord(ctx context.Context, id string) bool {
	return m.dedupe.SeenAndRecord(ctx, id)
}

func (m *mockDependencies) Unrecord(ctx context.Context, id string) {
	m.dedupe.Unrecord(ctx, id)
}

func (m *mockDependencies) Size() int64 {
	return m.dedupe.Size()
}

func (m *mockDependencies) Enqueue(ctx context.Context, req model.ScoreRequest) bool {
	return m.queue.Enqueue(ctx, req)
}

func (m *mockDependencies) Result(ctx context.Context, momentID, playerID string) (model.MSSResult, error) {
	return m.led.Result(ctx, momentID, playerID)
}

func (m *mockDependencies) ResultsForMoment(ctx context.Context, momentID string) ([]model.MSSResult, error) {
	return m.led.ResultsForMoment(ctx, momentID)
}

func (m *mockDependencies) TopShifts(ctx context.Context, n int) ([]api.RankedShift, error) {
	return m.led.TopShifts(ctx, n)
}

func (m *mockDependencies) WeightSet(ctx context.Context, version string) (model.WeightSet, error) {
	return m.led.WeightSet(ctx, version)
}

func (m *mockDependencies) WeightHistory(ctx context.Context) ([]model.WeightSet, error) {
	return m.led.WeightHistory(ctx)
}

func (m *mockDependencies) LatestReport(ctx context.Context) (model.CalibrationReport, error) {
	return m.led.LatestReport(ctx)
}

func (m *mockDependencies) RefitSettled(ctx context.Context) (evaluate.RefitOutcome, error) {
	return m.calibrator.RefitSettled(ctx)
}

// Local types mirroring the wire shapes.
type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

const validMomentJSON = `{
	"event_id": "evt-001",
	"game_id": "g-2024-188",
	"ts": "2024-07-04T19:30:00Z",
	"season": 2024,
	"phase": "regular",
	"inning": 7,
	"half": "bottom",
	"home_score_before": 2,
	"away_score_before": 3,
	"home_score_after": 4,
	"away_score_after": 3,
	"win_prob_before": 0.35,
	"win_prob_after": 0.62,
	"outcome": "home_run",
	"batting_team": "home",
	"batter_id": "batter-9",
	"pitcher_id": "pitcher-45",
	"observations": [
		{"player_id": "batter-9", "source": "media", "polarity": 0.6, "volume": 120, "offset_seconds": 1800}
	]
}`

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		deps := newMockDependencies()
		deps.led.byMoment = map[string][]model.MSSResult{
			"m-1": {{MomentID: "m-1", PlayerID: "p-1", Score: 41.1}},
		}
		deps.led.shifts = []api.RankedShift{
			{Rank: 1, MomentID: "m-1", PlayerID: "p-1", Score: 41.1},
		}
		deps.led.history = []model.WeightSet{{Version: "v0", W1: 60, W2: 40, Origin: model.WeightsSeed}}
		deps.led.weights = map[string]model.WeightSet{
			"v0": {Version: "v0", W1: 60, W2: 40, Origin: model.WeightsSeed},
		}
		statsProvider := &mockStatsProvider{stats: map[string]interface{}{"started": true}}
		server := api.NewServer(deps, statsProvider, 100)
		mux := http.NewServeMux()

		Convey("When registering routes", func() {
			server.Register(context.Background(), mux, deps)

			Convey("Then health endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/healthz", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And stats endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/stats", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And moments endpoint should reject an empty payload", func() {
				req := httptest.NewRequest("POST", "/moments", strings.NewReader(`{}`))
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("And moments endpoint should accept a valid payload", func() {
				req := httptest.NewRequest("POST", "/moments", strings.NewReader(validMomentJSON))
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusAccepted)
			})

			Convey("And results endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/results/m-1", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And shifts endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/shifts?limit=10", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And weights endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/weights", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And weight version endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/weights/v0", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And refit endpoint should be accessible", func() {
				req := httptest.NewRequest("POST", "/refit", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And report endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/report", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And unknown paths should return not found", func() {
				req := httptest.NewRequest("GET", "/unknown", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestMomentsHandler_HandlePostMoment(t *testing.T) {
	Convey("Given a moments handler", t, func() {
		deps := newMockDependencies()
		handler := api.NewMomentsHandler(deps)

		Convey("When handling a valid POST request", func() {
			req := httptest.NewRequest("POST", "/moments", strings.NewReader(validMomentJSON))
			w := httptest.NewRecorder()

			Convey("Then it should return accepted status", func() {
				handler.HandlePostMoment(w, req)
				So(w.Code, ShouldEqual, http.StatusAccepted)

				var response ackResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Status, ShouldEqual, "accepted")
				So(response.Duplicate, ShouldBeFalse)
			})

			Convey("Then the enqueued task should carry the observations", func() {
				handler.HandlePostMoment(w, req)
				So(len(deps.queue.enqueued), ShouldEqual, 1)
				task := deps.queue.enqueued[0]
				So(task.Raw.EventID, ShouldEqual, "evt-001")
				So(len(task.Observations), ShouldEqual, 1)
				So(task.Observations[0].MomentID, ShouldEqual, "evt-001")
				So(task.Observations[0].Source, ShouldEqual, model.SourceMedia)
			})
		})

		Convey("When handling a duplicate event", func() {
			req1 := httptest.NewRequest("POST", "/moments", strings.NewReader(validMomentJSON))
			w1 := httptest.NewRecorder()
			handler.HandlePostMoment(w1, req1)

			req2 := httptest.NewRequest("POST", "/moments", strings.NewReader(validMomentJSON))
			w2 := httptest.NewRecorder()

			Convey("Then it should return duplicate status without re-queueing", func() {
				handler.HandlePostMoment(w2, req2)
				So(w2.Code, ShouldEqual, http.StatusOK)

				var response ackResponse
				err := json.NewDecoder(w2.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Status, ShouldEqual, "duplicate")
				So(response.Duplicate, ShouldBeTrue)
				So(len(deps.queue.enqueued), ShouldEqual, 1)
			})
		})

		Convey("When handling an invalid JSON request", func() {
			req := httptest.NewRequest("POST", "/moments", strings.NewReader(`{invalid json`))
			w := httptest.NewRecorder()

			Convey("Then it should return bad request status", func() {
				handler.HandlePostMoment(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the event id is missing", func() {
			body := `{"ts": "2024-07-04T19:30:00Z"}`
			req := httptest.NewRequest("POST", "/moments", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then it should name the missing field", func() {
				handler.HandlePostMoment(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)

				var response errorResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Code, ShouldEqual, "bad_request")
				So(response.Message, ShouldContainSubstring, "missing event_id")
			})
		})

		Convey("When the timestamp is not RFC3339", func() {
			body := `{"event_id": "evt-002", "ts": "yesterday"}`
			req := httptest.NewRequest("POST", "/moments", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then it should return bad request status", func() {
				handler.HandlePostMoment(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)

				var response errorResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Message, ShouldContainSubstring, "invalid ts")
			})
		})

		Convey("When an observation has no player id", func() {
			body := `{
				"event_id": "evt-003",
				"ts": "2024-07-04T19:30:00Z",
				"observations": [{"source": "media", "polarity": 0.4, "volume": 10}]
			}`
			req := httptest.NewRequest("POST", "/moments", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then it should name the offending observation", func() {
				handler.HandlePostMoment(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)

				var response errorResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Message, ShouldContainSubstring, "observations[0].player_id")
			})
		})

		Convey("When the event itself is malformed", func() {
			body := `{"event_id": "evt-004", "ts": "2024-07-04T19:30:00Z", "game_id": "g-1"}`
			req := httptest.NewRequest("POST", "/moments", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then the builder rejection should list every missing field", func() {
				handler.HandlePostMoment(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)

				var response errorResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Code, ShouldEqual, "malformed_moment")
				So(response.Fields, ShouldContain, "batter_id")
				So(response.Fields, ShouldContain, "pitcher_id")
				So(response.Fields, ShouldContain, "outcome")
			})

			Convey("And no dedupe slot should be claimed", func() {
				handler.HandlePostMoment(w, req)
				So(deps.dedupe.seen["evt-004"], ShouldBeFalse)
			})
		})

		Convey("When a win probability is out of range", func() {
			body := strings.Replace(validMomentJSON, `"win_prob_after": 0.62`, `"win_prob_after": 1.7`, 1)
			req := httptest.NewRequest("POST", "/moments", strings.NewReader(body))
			w := httptest.NewRecorder()

			Convey("Then the offending field should be reported", func() {
				handler.HandlePostMoment(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)

				var response errorResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Code, ShouldEqual, "malformed_moment")
				So(response.Fields, ShouldContain, "win_prob_after")
			})
		})

		Convey("When handling a non-POST request", func() {
			req := httptest.NewRequest("GET", "/moments", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return not found status", func() {
				handler.HandlePostMoment(w, req)
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When enqueue fails due to backpressure", func() {
			deps.queue.enqueueSuccess = false
			req := httptest.NewRequest("POST", "/moments", strings.NewReader(validMomentJSON))
			w := httptest.NewRecorder()

			Convey("Then it should return too many requests and release the claim", func() {
				handler.HandlePostMoment(w, req)
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)

				var response errorResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Code, ShouldEqual, "backpressure")
				So(deps.dedupe.seen["evt-001"], ShouldBeFalse)
			})
		})
	})
}

func TestResultsHandler_HandleGetResults(t *testing.T) {
	Convey("Given a results handler", t, func() {
		deps := newMockDependencies()
		deps.led.results = map[string]model.MSSResult{
			"m-1/batter-9": {MomentID: "m-1", PlayerID: "batter-9", Role: model.RoleBatter, Score: 41.1, WeightVersion: "v0"},
		}
		deps.led.byMoment = map[string][]model.MSSResult{
			"m-1": {
				{MomentID: "m-1", PlayerID: "batter-9", Role: model.RoleBatter, Score: 41.1},
				{MomentID: "m-1", PlayerID: "pitcher-45", Role: model.RolePitcher, Score: -31.5},
			},
		}
		handler := api.NewResultsHandler(deps)

		Convey("When requesting all results for a moment", func() {
			req := httptest.NewRequest("GET", "/results/m-1", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return every per-player result", func() {
				handler.HandleGetResults(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")

				var response []model.MSSResult
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(len(response), ShouldEqual, 2)
				So(response[0].PlayerID, ShouldEqual, "batter-9")
				So(response[1].PlayerID, ShouldEqual, "pitcher-45")
			})
		})

		Convey("When requesting a single player result", func() {
			req := httptest.NewRequest("GET", "/results/m-1/batter-9", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return that result", func() {
				handler.HandleGetResults(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response model.MSSResult
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.PlayerID, ShouldEqual, "batter-9")
				So(response.Score, ShouldEqual, 41.1)
				So(response.WeightVersion, ShouldEqual, "v0")
			})
		})

		Convey("When requesting an unknown moment", func() {
			req := httptest.NewRequest("GET", "/results/m-unknown", nil)
			w := httptest.NewRecorder()

			handler.HandleGetResults(w, req)

			Convey("Then it should return not found status", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the path is empty", func() {
			req := httptest.NewRequest("GET", "/results/", nil)
			w := httptest.NewRecorder()

			handler.HandleGetResults(w, req)

			Convey("Then it should return bad request status", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the ledger fails", func() {
			deps.led.resultErr = fmt.Errorf("ledger unavailable")
			req := httptest.NewRequest("GET", "/results/m-1", nil)
			w := httptest.NewRecorder()

			handler.HandleGetResults(w, req)

			Convey("Then it should return internal server error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestShiftsHandler_HandleGetShifts(t *testing.T) {
	Convey("Given a shifts handler", t, func() {
		deps := newMockDependencies()
		deps.led.shifts = []api.RankedShift{
			{Rank: 1, MomentID: "m-1", PlayerID: "p-1", Score: -92.0},
			{Rank: 2, MomentID: "m-2", PlayerID: "p-2", Score: 88.5},
			{Rank: 3, MomentID: "m-3", PlayerID: "p-3", Score: 41.1},
		}
		handler := api.NewShiftsHandler(deps, 100)

		Convey("When requesting the top N shifts", func() {
			req := httptest.NewRequest("GET", "/shifts?limit=2", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return the top N rows", func() {
				handler.HandleGetShifts(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response []api.RankedShift
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(len(response), ShouldEqual, 2)
				So(response[0].MomentID, ShouldEqual, "m-1")
				So(response[1].MomentID, ShouldEqual, "m-2")
			})
		})

		Convey("When no limit is specified", func() {
			req := httptest.NewRequest("GET", "/shifts", nil)
			w := httptest.NewRecorder()

			handler.HandleGetShifts(w, req)

			Convey("Then it should return 400 Bad Request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the limit is not positive", func() {
			req := httptest.NewRequest("GET", "/shifts?limit=0", nil)
			w := httptest.NewRecorder()

			handler.HandleGetShifts(w, req)

			Convey("Then it should return 400 Bad Request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the limit exceeds the cap", func() {
			req := httptest.NewRequest("GET", "/shifts?limit=500", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return the limit_exceeded code", func() {
				handler.HandleGetShifts(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)

				var response errorResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Code, ShouldEqual, "limit_exceeded")
			})
		})

		Convey("When the ledger fails", func() {
			deps.led.shiftsErr = fmt.Errorf("ledger unavailable")
			req := httptest.NewRequest("GET", "/shifts?limit=10", nil)
			w := httptest.NewRecorder()

			handler.HandleGetShifts(w, req)

			Convey("Then it should return internal server error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestWeightsHandler(t *testing.T) {
	Convey("Given a weights handler", t, func() {
		deps := newMockDependencies()
		deps.led.history = []model.WeightSet{
			{Version: "v0", W1: 60, W2: 40, Origin: model.WeightsSeed},
			{Version: "v1", W1: 55.2, W2: 44.8, Origin: model.WeightsRefit},
		}
		deps.led.weights = map[string]model.WeightSet{
			"v0": deps.led.history[0],
			"v1": deps.led.history[1],
		}
		handler := api.NewWeightsHandler(deps)

		Convey("When requesting the latest weights", func() {
			req := httptest.NewRequest("GET", "/weights", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return the version in force", func() {
				handler.HandleGetLatest(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response model.WeightSet
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Version, ShouldEqual, "v1")
				So(response.Origin, ShouldEqual, model.WeightsRefit)
			})
		})

		Convey("When requesting the full history", func() {
			req := httptest.NewRequest("GET", "/weights?history=true", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return every version oldest first", func() {
				handler.HandleGetLatest(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response []model.WeightSet
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(len(response), ShouldEqual, 2)
				So(response[0].Version, ShouldEqual, "v0")
				So(response[1].Version, ShouldEqual, "v1")
			})
		})

		Convey("When requesting a specific version", func() {
			req := httptest.NewRequest("GET", "/weights/v0", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return that version", func() {
				handler.HandleGetVersion(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response model.WeightSet
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Version, ShouldEqual, "v0")
				So(response.W1, ShouldEqual, 60)
			})
		})

		Convey("When requesting an unknown version", func() {
			req := httptest.NewRequest("GET", "/weights/v99", nil)
			w := httptest.NewRecorder()

			handler.HandleGetVersion(w, req)

			Convey("Then it should return not found status", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the version path is empty", func() {
			req := httptest.NewRequest("GET", "/weights/", nil)
			w := httptest.NewRecorder()

			handler.HandleGetVersion(w, req)

			Convey("Then it should return bad request status", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestRefitHandler_HandlePostRefit(t *testing.T) {
	Convey("Given a refit handler", t, func() {
		deps := newMockDependencies()
		deps.calibrator.out = evaluate.RefitOutcome{
			Weights:      model.WeightSet{Version: "v1", W1: 57.3, W2: 42.7, Origin: model.WeightsRefit},
			ModelVersion: "m1",
			Report:       model.CalibrationReport{RunID: "run-1", Batch: 3, Evaluated: 3},
		}
		handler := api.NewRefitHandler(deps)

		Convey("When a refit succeeds", func() {
			req := httptest.NewRequest("POST", "/refit", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return the published versions", func() {
				handler.HandlePostRefit(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response struct {
					Weights      model.WeightSet         `json:"weights"`
					ModelVersion string                  `json:"model_version"`
					Report       model.CalibrationReport `json:"report"`
				}
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Weights.Version, ShouldEqual, "v1")
				So(response.ModelVersion, ShouldEqual, "m1")
				So(response.Report.Batch, ShouldEqual, 3)
			})
		})

		Convey("When the training batch is degenerate", func() {
			deps.calibrator.err = fmt.Errorf("refit: %w: no training rows", evaluate.ErrDegenerateBatch)
			req := httptest.NewRequest("POST", "/refit", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return unprocessable entity", func() {
				handler.HandlePostRefit(w, req)
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)

				var response errorResponse
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Code, ShouldEqual, "degenerate_batch")
			})
		})

		Convey("When the calibrator fails", func() {
			deps.calibrator.err = fmt.Errorf("ledger unavailable")
			req := httptest.NewRequest("POST", "/refit", nil)
			w := httptest.NewRecorder()

			handler.HandlePostRefit(w, req)

			Convey("Then it should return internal server error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})

		Convey("When handling a non-POST request", func() {
			req := httptest.NewRequest("GET", "/refit", nil)
			w := httptest.NewRecorder()

			handler.HandlePostRefit(w, req)

			Convey("Then it should return not found status", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestReportHandler_HandleGetReport(t *testing.T) {
	Convey("Given a report handler", t, func() {
		deps := newMockDependencies()
		deps.led.report = model.CalibrationReport{
			RunID:              "run-7",
			Batch:              12,
			Evaluated:          10,
			Skipped:            2,
			CorrelationDefined: true,
			Correlation:        0.83,
		}
		handler := api.NewReportHandler(deps)

		Convey("When requesting the latest report", func() {
			req := httptest.NewRequest("GET", "/report", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return the report", func() {
				handler.HandleGetReport(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response model.CalibrationReport
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.RunID, ShouldEqual, "run-7")
				So(response.Evaluated, ShouldEqual, 10)
				So(response.CorrelationDefined, ShouldBeTrue)
			})
		})

		Convey("When no report has been stored", func() {
			deps.led.reportErr = ledger.ErrNoReport
			req := httptest.NewRequest("GET", "/report", nil)
			w := httptest.NewRecorder()

			handler.HandleGetReport(w, req)

			Convey("Then it should return not found status", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestHealthHandler_HandleHealth(t *testing.T) {
	Convey("Given a health handler", t, func() {
		handler := api.NewHealthHandler()

		Convey("When handling health check request", func() {
			req := httptest.NewRequest("GET", "/healthz", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return OK status", func() {
				handler.HandleHealth(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestStatsHandler_HandleStats(t *testing.T) {
	Convey("Given a stats handler", t, func() {
		mockStats := &mockStatsProvider{
			stats: map[string]interface{}{
				"results":       1000,
				"weightVersion": "v3",
			},
		}
		handler := api.NewStatsHandler(mockStats)

		Convey("When handling stats request", func() {
			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return stats", func() {
				handler.HandleStats(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response map[string]interface{}
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response["results"], ShouldEqual, 1000)
				So(response["weightVersion"], ShouldEqual, "v3")
			})
		})
	})
}

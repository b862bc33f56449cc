// README: Simulation steps; each step drives one API call (or a DB/Redis cross-check) and shares state with the next.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

// geoKey must match the key used by the API's Redis geo index.
const geoKey = "location:drivers"

type point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

var (
	pickup  = point{Lat: 37.7955, Lng: -122.3937}
	dropoff = point{Lat: 37.7599, Lng: -122.4148}
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// state carried between steps
	runID    string
	drivers  []string
	riderID  string
	rideID   string
	driverID string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type Step struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	runID := uuid.NewString()[:8]
	return &Runner{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		runID:   runID,
		riderID: "rider-" + runID,
	}
}

// RunAll executes the steps in order and stops at the first failure,
// since later steps depend on the ride created earlier.
func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer r.redis.Close()
	}

	steps := r.steps()
	results := make([]Result, 0, len(steps))
	for _, st := range steps {
		start := time.Now()
		res := st.Run(ctx, r)
		res.Name = st.Name
		if res.Latency == 0 {
			res.Latency = time.Since(start)
		}
		results = append(results, res)
		fmt.Printf("%-5s %s (%s)", res.Status, st.Name, res.Latency.Round(time.Millisecond))
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
		if res.Status == statusFail {
			break
		}
	}
	return results
}

func (r *Runner) steps() []Step {
	return []Step{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/health", nil, http.StatusOK, nil)
		}},
		{Name: "Drivers: onboard and report position", Run: onboardDrivers},
		{Name: "Drivers: geo index populated", Run: checkGeoIndex},
		{Name: "Drivers: nearby search", Run: nearbyDrivers},
		{Name: "Ride: request", Run: requestRide},
		{Name: "Ride: second request while active -> 409", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/rides", rideBody(r.riderID), http.StatusConflict, nil)
		}},
		{Name: "Matching: assign", Run: assignRide},
		{Name: "Matching: assign again -> 409", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/assign", nil, http.StatusConflict, nil)
		}},
		{Name: "Matching: detour audit trail", Run: checkScores},
		{Name: "Matching: fallback before timeout", Run: fallbackWaiting},
		{Name: "Matching: fallback revert and reassign", Run: fallbackRevert},
		{Name: "Ride: start by assigned driver", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/start", map[string]any{"driver_id": r.driverID}, http.StatusOK, nil)
		}},
		{Name: "Location: in-ride pings and polling", Run: pingAndPoll},
		{Name: "Ride: complete", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/complete", map[string]any{"driver_id": r.driverID}, http.StatusOK, nil)
		}},
		{Name: "Ride: cancel after completion -> 409", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/cancel", map[string]any{"rider_id": r.riderID}, http.StatusConflict, nil)
		}},
		{Name: "Driver: dashboard lists completed ride", Run: checkDashboard},
		{Name: "Consistency: persisted ride row", Run: checkPersistedRide},
		{Name: "Concurrency: parallel assign of one ride", Run: concurrentAssign},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "dsn not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

// onboardDrivers places drivers on a line east of the pickup, roughly 600 m apart.
func onboardDrivers(ctx context.Context, r *Runner) Result {
	for i := 0; i < r.cfg.Drivers; i++ {
		id := fmt.Sprintf("driver-%s-%d", r.runID, i)
		res := r.expect(ctx, http.MethodPost, "/api/drivers", map[string]any{
			"user_id":            id,
			"name":               fmt.Sprintf("Sim Driver %d", i),
			"vehicle_type":       "sedan",
			"max_detour_minutes": 15,
		}, http.StatusCreated, nil)
		if res.Status != statusPass {
			return res
		}
		pos := point{Lat: pickup.Lat, Lng: pickup.Lng - 0.007*float64(i+1)}
		res = r.expect(ctx, http.MethodPut, "/api/drivers/"+id+"/location", pos, http.StatusOK, nil)
		if res.Status != statusPass {
			return res
		}
		r.drivers = append(r.drivers, id)
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("drivers=%d", len(r.drivers))}
}

func checkGeoIndex(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	positions, err := r.redis.GeoPos(ctx, geoKey, r.drivers...).Result()
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for i, p := range positions {
		if p == nil {
			return Result{Status: statusFail, Note: "missing geo entry for " + r.drivers[i]}
		}
	}
	return Result{Status: statusPass}
}

func nearbyDrivers(ctx context.Context, r *Runner) Result {
	var body struct {
		Drivers []struct {
			DriverID   string  `json:"driver_id"`
			DistanceKm float64 `json:"distance_km"`
		} `json:"drivers"`
	}
	path := fmt.Sprintf("/api/nearby/drivers?lat=%f&lng=%f&radius_km=5&limit=50", pickup.Lat, pickup.Lng)
	res := r.expect(ctx, http.MethodGet, path, nil, http.StatusOK, &body)
	if res.Status != statusPass {
		return res
	}
	if len(body.Drivers) == 0 {
		return Result{Status: statusFail, Note: "no drivers near pickup"}
	}
	res.Note = fmt.Sprintf("nearby=%d nearest=%.2fkm", len(body.Drivers), body.Drivers[0].DistanceKm)
	return res
}

func rideBody(riderID string) map[string]any {
	return map[string]any{
		"rider_id": riderID,
		"pickup":   map[string]any{"lat": pickup.Lat, "lng": pickup.Lng, "address": "Ferry Building"},
		"dropoff":  map[string]any{"lat": dropoff.Lat, "lng": dropoff.Lng, "address": "Mission Dolores"},
	}
}

type rideView struct {
	RideID       string  `json:"ride_id"`
	Status       string  `json:"status"`
	DriverID     *string `json:"driver_id"`
	DistanceM    int     `json:"distance_m"`
	FareEstimate struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"fare_estimate"`
	FallbackCount int `json:"fallback_count"`
}

func requestRide(ctx context.Context, r *Runner) Result {
	var ride rideView
	res := r.expect(ctx, http.MethodPost, "/api/rides", rideBody(r.riderID), http.StatusCreated, &ride)
	if res.Status != statusPass {
		return res
	}
	r.rideID = ride.RideID
	res.Note = fmt.Sprintf("ride=%s distance=%dm fare=%d %s", ride.RideID, ride.DistanceM, ride.FareEstimate.Amount, ride.FareEstimate.Currency)
	return res
}

type assignView struct {
	DriverID      string   `json:"driver_id"`
	DetourMinutes float64  `json:"detour_minutes"`
	Candidates    int      `json:"candidates"`
	Ride          rideView `json:"ride"`
}

func assignRide(ctx context.Context, r *Runner) Result {
	var body assignView
	res := r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/assign", nil, http.StatusOK, &body)
	if res.Status != statusPass {
		return res
	}
	r.driverID = body.DriverID
	res.Note = fmt.Sprintf("driver=%s detour=%.1fmin candidates=%d", body.DriverID, body.DetourMinutes, body.Candidates)
	return res
}

func checkScores(ctx context.Context, r *Runner) Result {
	var body struct {
		Scores []struct {
			DriverID string `json:"driver_id"`
			Outcome  string `json:"outcome"`
		} `json:"scores"`
	}
	res := r.expect(ctx, http.MethodGet, "/api/rides/"+r.rideID+"/scores", nil, http.StatusOK, &body)
	if res.Status != statusPass {
		return res
	}
	chosen := 0
	for _, s := range body.Scores {
		if s.Outcome == "chosen" {
			chosen++
			if s.DriverID != r.driverID {
				return Result{Status: statusFail, Note: "chosen record does not match assigned driver"}
			}
		}
	}
	if chosen != 1 {
		return Result{Status: statusFail, Note: fmt.Sprintf("chosen records=%d", chosen)}
	}
	res.Note = fmt.Sprintf("records=%d", len(body.Scores))
	return res
}

type fallbackView struct {
	Status           string   `json:"status"`
	ElapsedSeconds   int      `json:"elapsed_seconds"`
	ReleasedDriverID string   `json:"released_driver_id"`
	Ride             rideView `json:"ride"`
}

func fallbackWaiting(ctx context.Context, r *Runner) Result {
	var body fallbackView
	res := r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/fallback", map[string]any{"timeout_seconds": 3600}, http.StatusOK, &body)
	if res.Status != statusPass {
		return res
	}
	if body.Status != "still_waiting" {
		return Result{Status: statusFail, Note: "expected still_waiting, got " + body.Status}
	}
	return res
}

// fallbackRevert waits out a short timeout, checks the driver is released,
// and assigns the ride again so the remaining steps can proceed.
func fallbackRevert(ctx context.Context, r *Runner) Result {
	if r.cfg.FallbackWait <= 0 {
		return Result{Status: statusSkip, Note: "fallback-wait not set"}
	}
	select {
	case <-time.After(r.cfg.FallbackWait):
	case <-ctx.Done():
		return Result{Status: statusFail, Note: ctx.Err().Error()}
	}
	var body fallbackView
	seconds := int(r.cfg.FallbackWait / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	res := r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/fallback", map[string]any{"timeout_seconds": seconds}, http.StatusOK, &body)
	if res.Status != statusPass {
		return res
	}
	if body.Status != "reverted" || body.Ride.Status != "requested" || body.Ride.DriverID != nil {
		return Result{Status: statusFail, Note: fmt.Sprintf("unexpected fallback result status=%s ride=%s", body.Status, body.Ride.Status)}
	}
	released := body.ReleasedDriverID
	if res := assignRide(ctx, r); res.Status != statusPass {
		return res
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("released=%s reassigned=%s", released, r.driverID)}
}

// pingAndPoll moves the driver from the pickup toward the dropoff and polls
// the rider-facing location endpoint after every ping.
func pingAndPoll(ctx context.Context, r *Runner) Result {
	n := r.cfg.Pings
	for i := 1; i <= n; i++ {
		f := float64(i) / float64(n)
		pos := point{
			Lat: pickup.Lat + (dropoff.Lat-pickup.Lat)*f,
			Lng: pickup.Lng + (dropoff.Lng-pickup.Lng)*f,
		}
		res := r.expect(ctx, http.MethodPut, "/api/rides/"+r.rideID+"/location", map[string]any{
			"driver_id": r.driverID, "lat": pos.Lat, "lng": pos.Lng,
		}, http.StatusOK, nil)
		if res.Status != statusPass {
			return res
		}
		var latest point
		res = r.expect(ctx, http.MethodGet, "/api/rides/"+r.rideID+"/location", nil, http.StatusOK, &latest)
		if res.Status != statusPass {
			return res
		}
		if latest != pos {
			return Result{Status: statusFail, Note: fmt.Sprintf("polled %v, last ping %v", latest, pos)}
		}
		if i < n {
			time.Sleep(r.cfg.PingInterval)
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("pings=%d", n)}
}

func checkDashboard(ctx context.Context, r *Runner) Result {
	var body struct {
		Active    *rideView  `json:"active_ride"`
		Completed []rideView `json:"completed_rides"`
	}
	res := r.expect(ctx, http.MethodGet, "/api/drivers/"+r.driverID+"/dashboard", nil, http.StatusOK, &body)
	if res.Status != statusPass {
		return res
	}
	if body.Active != nil {
		return Result{Status: statusFail, Note: "driver still has an active ride"}
	}
	for _, c := range body.Completed {
		if c.RideID == r.rideID {
			return res
		}
	}
	return Result{Status: statusFail, Note: "completed ride missing from dashboard"}
}

func checkPersistedRide(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "dsn not configured"}
	}
	var status string
	var version int
	var driverSet bool
	err := r.db.QueryRow(ctx,
		"SELECT status, status_version, driver_id IS NOT NULL FROM rides WHERE id=$1", r.rideID,
	).Scan(&status, &version, &driverSet)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != "completed" || driverSet {
		return Result{Status: statusFail, Note: fmt.Sprintf("status=%s driver_set=%v", status, driverSet)}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("status_version=%d", version)}
}

// concurrentAssign requests a fresh ride and fires parallel assign calls at it.
// Exactly one may succeed.
func concurrentAssign(ctx context.Context, r *Runner) Result {
	var ride rideView
	res := r.expect(ctx, http.MethodPost, "/api/rides", rideBody("rider-"+r.runID+"-race"), http.StatusCreated, &ride)
	if res.Status != statusPass {
		return res
	}
	const parallel = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		succ int
	)
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := r.do(ctx, http.MethodPost, "/api/rides/"+ride.RideID+"/assign", nil, nil)
			if err != nil {
				return
			}
			if code == http.StatusOK {
				mu.Lock()
				succ++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if succ != 1 {
		return Result{Status: statusFail, Note: fmt.Sprintf("success=%d", succ)}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("success=%d of %d", succ, parallel)}
}

// expect performs one call and passes when the response code matches want.
// When out is non-nil the body is decoded into it.
func (r *Runner) expect(ctx context.Context, method, path string, body any, want int, out any) Result {
	start := time.Now()
	code, err := r.do(ctx, method, path, body, out)
	latency := time.Since(start)
	if err != nil {
		return Result{Status: statusFail, Latency: latency, Note: err.Error()}
	}
	if code != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", code, want)}
	}
	return Result{Status: statusPass, Latency: latency}
}

func (r *Runner) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

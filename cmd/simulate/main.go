// simulate drives a running api-server with concurrent booking traffic. Its
// main purpose is to demonstrate the per-doctor serialization property: a
// burst of simultaneous bookings for one doctor and one instant must yield
// exactly one success, the rest conflicts.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/medisched/hospital-scheduling/internal/config"
	"github.com/medisched/hospital-scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Rounds      int
	BurstSize   int
	PostgresDSN string
}

type Metrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	Latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&m.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&m.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.Conflict, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}

	m.mu.Lock()
	m.Latencies = append(m.Latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) Stats() (avg, p50, p95 time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(m.Latencies))
	copy(latencies, m.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	idx95 := len(latencies) * 95 / 100
	if idx95 >= len(latencies) {
		idx95 = len(latencies) - 1
	}
	p95 = latencies[idx95]
	return avg, p50, p95
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	simCfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_URL", "http://127.0.0.1:8080"),
		Rounds:      getEnvInt("SIM_ROUNDS", 10),
		BurstSize:   getEnvInt("SIM_BURST", 25),
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	simCfg.PostgresDSN = cfg.PostgresDSN

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	patients, doctors, err := loadIDs(ctx, simCfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("load ids: %v", err)
	}
	if len(patients) == 0 || len(doctors) == 0 {
		log.Fatal("no patients or doctors found, run cmd/seed first")
	}
	log.Printf("loaded %d patients, %d doctors", len(patients), len(doctors))

	client := &http.Client{Timeout: 10 * time.Second}
	metrics := &Metrics{}

	for round := 1; round <= simCfg.Rounds; round++ {
		doctor := doctors[rand.Intn(len(doctors))]
		// Next Tuesday 10:00 plus a per-round offset keeps rounds disjoint.
		at := nextTuesday().Add(time.Duration(round) * 2 * time.Hour)

		success := runBurst(client, simCfg, metrics, patients, doctor, at)
		if success == 1 {
			log.Printf("round %d: burst of %d -> exactly 1 success, ok", round, simCfg.BurstSize)
		} else {
			log.Printf("round %d: burst of %d -> %d successes, DOUBLE BOOKING", round, simCfg.BurstSize, success)
		}
	}

	avg, p50, p95 := metrics.Stats()
	log.Printf("total=%d success=%d conflict=%d error=%d", metrics.Total, metrics.Success, metrics.Conflict, metrics.Error)
	log.Printf("latency avg=%s p50=%s p95=%s", avg, p50, p95)
}

// runBurst fires BurstSize simultaneous create requests for the same doctor
// and instant and returns how many were accepted.
func runBurst(client *http.Client, cfg SimConfig, metrics *Metrics, patients []uuid.UUID, doctor uuid.UUID, at time.Time) int64 {
	var success int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < cfg.BurstSize; i++ {
		patient := patients[rand.Intn(len(patients))]

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			body, _ := json.Marshal(map[string]string{
				"patient_id":   patient.String(),
				"doctor_id":    doctor.String(),
				"scheduled_at": at.Format(time.RFC3339),
			})

			t0 := time.Now()
			resp, err := client.Post(cfg.APIBaseURL+"/appointments", "application/json", bytes.NewReader(body))
			if err != nil {
				metrics.Record(time.Since(t0), 0)
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()

			metrics.Record(time.Since(t0), resp.StatusCode)
			if resp.StatusCode == http.StatusCreated {
				atomic.AddInt64(&success, 1)
			}
		}()
	}

	close(start)
	wg.Wait()
	return success
}

func loadIDs(ctx context.Context, dsn string) (patients, doctors []uuid.UUID, err error) {
	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT 1000`)
	if err != nil {
		return nil, nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, nil, err
		}
		patients = append(patients, id)
	}

	drows, err := pool.Query(ctx, `SELECT id FROM doctors LIMIT 200`)
	if err != nil {
		return nil, nil, fmt.Errorf("load doctors: %w", err)
	}
	defer drows.Close()
	for drows.Next() {
		var id uuid.UUID
		if err := drows.Scan(&id); err != nil {
			return nil, nil, err
		}
		doctors = append(doctors, id)
	}

	return patients, doctors, nil
}

func nextTuesday() time.Time {
	t := time.Now().Truncate(time.Hour)
	for t.Weekday() != time.Tuesday {
		t = t.Add(24 * time.Hour)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 10, 0, 0, 0, time.Local).AddDate(0, 0, 7)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

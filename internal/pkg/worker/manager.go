package worker

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/borikenlabs/athmovil/app/repository"
	"github.com/borikenlabs/athmovil/internal/pkg/athm"
	"github.com/borikenlabs/athmovil/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

// Manager runs the background reconcile sweep: payments still OPEN or CONFIRM
// after a grace period are polled against the gateway, covering deliveries the
// webhook path lost.
type Manager struct {
	store      repository.Store
	reconciler *athm.Reconciler

	interval  time.Duration
	minAge    time.Duration
	batchSize int

	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewManager(store repository.Store, reconciler *athm.Reconciler) *Manager {
	return &Manager{
		store:      store,
		reconciler: reconciler,
		interval:   envMinutes("RECONCILE_INTERVAL_MINUTES", 5),
		minAge:     envMinutes("RECONCILE_MIN_AGE_MINUTES", 10),
		batchSize:  envInt("RECONCILE_BATCH_SIZE", 100),
	}
}

func envMinutes(key string, defMinutes int) time.Duration {
	return time.Duration(envInt(key, defMinutes)) * time.Minute
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(env.GetEnv(key, "")); err == nil && v > 0 {
		return v
	}
	return def
}

// Start launches the sweep worker. Safe to call more than once.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.stopCh = make(chan struct{})
	m.running = true

	log.Infof("[Worker] Starting reconcile sweep (interval %s, min age %s)", m.interval, m.minAge)
	m.ticker = time.NewTicker(m.interval)
	m.wg.Add(1)
	go m.sweepWorker()
}

// Stop halts the worker and waits for an in-flight sweep to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.ticker != nil {
		m.ticker.Stop()
	}
	close(m.stopCh)
	m.wg.Wait()
	m.running = false
	log.Info("[Worker] Reconcile sweep stopped")
}

func (m *Manager) sweepWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.minAge)
	payments, err := m.store.ListReconcilablePayments(cutoff, m.batchSize)
	if err != nil {
		log.Errorf("[Worker] Failed to list payments for reconcile: %v", err)
		return
	}
	if len(payments) == 0 {
		return
	}

	log.Infof("[Worker] Reconciling %d stale payments", len(payments))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	for i := range payments {
		select {
		case <-m.stopCh:
			return
		default:
		}
		m.reconciler.SyncStatus(ctx, &payments[i])
	}
}

package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/invoiceportal/InvoicePortal/internal/pkg/env"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/metrics/counter"
)

// Manager owns the queue and the periodic background workers
type Manager struct {
	queue   *Queue
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workers, _ := strconv.Atoi(env.GetEnv("JOB_WORKERS", "2"))
		globalManager = &Manager{
			queue:  NewQueue(workers),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the underlying queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true

	log.Info("[JobQueue Manager] Starting job queue and background tasks")
	m.queue.Start()

	// Drain invoice view counters from Redis into the database.
	m.wg.Add(1)
	go m.viewFlushWorker(15 * time.Second)

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the workers and waits for them to drain
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false

	close(m.stopCh)
	m.queue.Stop()
	m.wg.Wait()

	// One last flush so pending counters survive a restart.
	if err := counter.FlushInvoiceViews(); err != nil {
		log.Errorf("[JobQueue Manager] Final view flush failed: %v", err)
	}
}

func (m *Manager) viewFlushWorker(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if err := counter.FlushInvoiceViews(); err != nil {
				log.Errorf("[JobQueue Manager] View flush failed: %v", err)
			}
		}
	}
}

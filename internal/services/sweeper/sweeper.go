// Package sweeper возвращает в очередь заявки, по которым назначенный
// персонал не ответил до дедлайна. Крутится в воркере по тикеру,
// Trigger даёт внеочередной проход (ручка в debug-HTTP воркера).
package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/EcoCycle/PickupDesk/internal/broker/messages"
	"github.com/EcoCycle/PickupDesk/internal/models"
)

type Repository interface {
	ClaimExpiredAssignments(ctx context.Context, now time.Time, limit int) ([]*models.PickupRequest, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Cache interface {
	Del(ctx context.Context, key string) error
}

type Sweeper struct {
	repo     Repository
	producer Producer
	cache    Cache

	topic string

	sweepInterval time.Duration
	batchSize     int
	concurrency   int

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, producer Producer, cache Cache, topic string) *Sweeper {
	return &Sweeper{
		repo: repo, producer: producer, cache: cache, topic: topic,
		sweepInterval:     time.Minute,
		batchSize:         100,
		concurrency:       10,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (s *Sweeper) WithSettings(sweepInterval time.Duration, batchSize, concurrency int) *Sweeper {
	if sweepInterval > 0 {
		s.sweepInterval = sweepInterval
	}
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	return s
}

// Trigger forces an immediate sweep cycle (best-effort, non-blocking).
func (s *Sweeper) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (s *Sweeper) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalClaimed:   s.totalClaimed.Load(),
		TotalProcessed: s.totalProcessed.Load(),
		TotalErrors:    s.totalErrors.Load(),
		InFlight:       s.inFlight.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.sweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	s.lastCycleUnixNano.Store(now.UnixNano())

	// Сброс назначения уже зафиксирован в БД, дальше только уведомления.
	items, err := s.repo.ClaimExpiredAssignments(ctx, now, s.batchSize)
	if err != nil {
		slog.Error("claim expired assignments", "error", err.Error())
		s.lastErrorMu.Lock()
		s.lastError = err.Error()
		s.lastErrorMu.Unlock()
		return
	}
	s.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, r := range items {
		sem <- struct{}{}
		wg.Add(1)
		rCopy := r
		s.inFlight.Add(1)
		go func() {
			defer func() {
				s.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := s.processOne(ctx, rCopy); err != nil {
				s.totalErrors.Add(1)
				s.lastErrorMu.Lock()
				s.lastError = err.Error()
				s.lastErrorMu.Unlock()
				slog.Error("process expired assignment", "request_id", rCopy.RequestID, "error", err.Error())
			}
			s.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (s *Sweeper) processOne(ctx context.Context, r *models.PickupRequest) error {
	now := time.Now().UTC()

	if s.cache != nil {
		_ = s.cache.Del(ctx, fmt.Sprintf("request:%d:current", r.RequestID))
	}

	msg := messages.RequestUpdated{
		RequestID: r.RequestID,
		Event:     messages.EventPickupExpired,
		Status:    r.Status,
		At:        now,
		UserID:    r.UserID,
		UserName:  r.UserName,
		UserEmail: r.UserEmail,
	}
	// снимок до сброса: имена персонала нужны для письма админу
	if r.PickupPersonnelName != nil {
		msg.PickupPersonnelName = *r.PickupPersonnelName
	}
	if r.PickupPersonnelEmail != nil {
		msg.PickupPersonnelEmail = *r.PickupPersonnelEmail
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	key := []byte(fmt.Sprintf("%d", r.RequestID))
	// Kafka может быть не готова сразу после старта docker compose.
	// Для устойчивости делаем небольшой retry.
	var pubErr error
	for i := 0; i < 10; i++ {
		if err := s.producer.Publish(ctx, s.topic, key, b); err == nil {
			pubErr = nil
			break
		} else {
			pubErr = err
			time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
		}
	}
	return pubErr
}

// Package requests — ядро сервиса: жизненный цикл заявки на вывоз.
// Все переходы идут через транзакционный mutate хранилища, гварды
// проверяются против строки из БД. После успешного перехода сервис
// публикует событие в Kafka и обновляет кэш снапшота.
package requests

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/EcoCycle/PickupDesk/internal/broker/messages"
	"github.com/EcoCycle/PickupDesk/internal/lifecycle"
	"github.com/EcoCycle/PickupDesk/internal/models"
	"github.com/EcoCycle/PickupDesk/internal/storage/pgrequests"
)

var ErrNotAssigned = errors.New("request is not assigned to this personnel")

type Repository interface {
	CreateRequest(ctx context.Context, in models.RequestCreateInput) (*models.PickupRequest, error)
	GetRequestByID(ctx context.Context, id uint64) (*models.PickupRequest, error)
	ListRequests(ctx context.Context, f pgrequests.RequestFilter) ([]*models.PickupRequest, error)
	UpdateRequest(ctx context.Context, id uint64, mutate func(*models.PickupRequest) error) (*models.PickupRequest, error)
	CompleteWithCredit(ctx context.Context, id uint64, mutate func(*models.PickupRequest) error) (*models.PickupRequest, error)
}

type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type OTPIssuer interface {
	Issue(ctx context.Context, requestID uint64) (string, error)
	Verify(ctx context.Context, requestID uint64, code string) error
	Clear(ctx context.Context, requestID uint64) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Service struct {
	repo     Repository
	cache    BytesCache
	otp      OTPIssuer
	producer Publisher
	log      *slog.Logger

	topic            string
	snapshotTTL      time.Duration
	responseDeadline time.Duration

	validate *validator.Validate
}

func New(repo Repository, cache BytesCache, otpSvc OTPIssuer, producer Publisher, log *slog.Logger,
	topic string, snapshotTTL, responseDeadline time.Duration) *Service {
	if responseDeadline <= 0 {
		responseDeadline = 12 * time.Hour
	}
	return &Service{
		repo:             repo,
		cache:            cache,
		otp:              otpSvc,
		producer:         producer,
		log:              log,
		topic:            topic,
		snapshotTTL:      snapshotTTL,
		responseDeadline: responseDeadline,
		validate:         validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Submit создаёт заявку в PENDING.
func (s *Service) Submit(ctx context.Context, in models.RequestCreateInput) (*models.PickupRequest, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, errors.Wrap(err, "validate request")
	}

	r, err := s.repo.CreateRequest(ctx, in)
	if err != nil {
		return nil, err
	}

	s.cacheSnapshot(ctx, r)
	s.publish(ctx, messages.EventSubmitted, r, nil)
	return r, nil
}

// Get читает заявку, сперва из кэша снапшотов. Кэш best-effort.
func (s *Service) Get(ctx context.Context, id uint64) (*models.PickupRequest, error) {
	if s.cache != nil && s.snapshotTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, snapshotKey(id)); err == nil && ok {
			var r models.PickupRequest
			if json.Unmarshal(b, &r) == nil {
				return &r, nil
			}
		}
	}

	r, err := s.repo.GetRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, r)
	return r, nil
}

func (s *Service) List(ctx context.Context, f pgrequests.RequestFilter) ([]*models.PickupRequest, error) {
	return s.repo.ListRequests(ctx, f)
}

// Approve: админ подтверждает заявку и назначает диапазон выплаты.
func (s *Service) Approve(ctx context.Context, id uint64, allocatedRange string) (*models.PickupRequest, error) {
	now := time.Now().UTC()
	r, err := s.repo.UpdateRequest(ctx, id, func(r *models.PickupRequest) error {
		return lifecycle.Approve(r, allocatedRange, now)
	})
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, r)
	s.publish(ctx, messages.EventApproved, r, nil)
	return r, nil
}

// Reject: админ отклоняет заявку с обязательной причиной. Терминально.
func (s *Service) Reject(ctx context.Context, id uint64, reason string) (*models.PickupRequest, error) {
	now := time.Now().UTC()
	r, err := s.repo.UpdateRequest(ctx, id, func(r *models.PickupRequest) error {
		return lifecycle.Reject(r, reason, now)
	})
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, r)
	s.publish(ctx, messages.EventRejected, r, nil)
	return r, nil
}

// Schedule: админ назначает персонал и время вывоза. Ответ персонала
// ограничен дедлайном, после которого заявка возвращается в очередь.
func (s *Service) Schedule(ctx context.Context, id uint64, in models.ScheduleInput) (*models.PickupRequest, error) {
	now := time.Now().UTC()
	r, err := s.repo.UpdateRequest(ctx, id, func(r *models.PickupRequest) error {
		return lifecycle.Schedule(r, in, s.responseDeadline, now)
	})
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, r)
	s.publish(ctx, messages.EventScheduled, r, nil)
	return r, nil
}

// AcceptPickup: назначенный персонал подтверждает вывоз.
func (s *Service) AcceptPickup(ctx context.Context, id, personnelID uint64) (*models.PickupRequest, error) {
	now := time.Now().UTC()
	r, err := s.repo.UpdateRequest(ctx, id, func(r *models.PickupRequest) error {
		if err := assignedTo(r, personnelID); err != nil {
			return err
		}
		return lifecycle.AcceptPickup(r, now)
	})
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, r)
	s.publish(ctx, messages.EventPickupAccepted, r, nil)
	return r, nil
}

// RejectPickup: персонал отказывается, заявка уходит обратно в PENDING.
// Причина не остаётся на записи, только в событии для админа.
func (s *Service) RejectPickup(ctx context.Context, id, personnelID uint64, reason string) (*models.PickupRequest, error) {
	var prev models.PickupRequest
	now := time.Now().UTC()
	r, err := s.repo.UpdateRequest(ctx, id, func(r *models.PickupRequest) error {
		if err := assignedTo(r, personnelID); err != nil {
			return err
		}
		prev = *r
		return lifecycle.RejectPickup(r, reason, now)
	})
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, r)
	s.publish(ctx, messages.EventPickupRejected, r, func(m *messages.RequestUpdated) {
		m.RejectionReason = reason
		if prev.PickupPersonnelName != nil {
			m.PickupPersonnelName = *prev.PickupPersonnelName
		}
		if prev.PickupPersonnelEmail != nil {
			m.PickupPersonnelEmail = *prev.PickupPersonnelEmail
		}
	})
	return r, nil
}

// RequestOTP: SCHEDULED+ACCEPTED -> OTP_REQUESTED, код уходит владельцу
// письмом через событие. В API-ответ код не попадает.
func (s *Service) RequestOTP(ctx context.Context, id, personnelID uint64) (*models.PickupRequest, error) {
	cur, err := s.repo.GetRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == lifecycle.StatusOTPRequested {
		// Статус уже переведён: решает SetNX в otp-сервисе. Живой код
		// повторно не выдаётся (ErrAlreadyRequested), истёкший по TTL
		// перевыпускается и уходит владельцу новым письмом — иначе
		// заявка застряла бы в OTP_REQUESTED навсегда.
		if err := assignedTo(cur, personnelID); err != nil {
			return nil, err
		}
		code, err := s.otp.Issue(ctx, id)
		if err != nil {
			return nil, err
		}
		s.publish(ctx, messages.EventOTPRequested, cur, func(m *messages.RequestUpdated) {
			m.OTP = code
		})
		return cur, nil
	}

	now := time.Now().UTC()
	r, err := s.repo.UpdateRequest(ctx, id, func(r *models.PickupRequest) error {
		if err := assignedTo(r, personnelID); err != nil {
			return err
		}
		return lifecycle.RequestOTP(r, now)
	})
	if err != nil {
		return nil, err
	}

	// Переход зафиксирован, выдаём код. Остаток от прошлого захода снимаем.
	_ = s.otp.Clear(ctx, id)
	code, err := s.otp.Issue(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheSnapshot(ctx, r)
	s.publish(ctx, messages.EventOTPRequested, r, func(m *messages.RequestUpdated) {
		m.OTP = code
	})
	return r, nil
}

// VerifyAndComplete: проверка кода, перевод в COMPLETED и атомарное
// зачисление суммы на кошелёк владельца.
func (s *Service) VerifyAndComplete(ctx context.Context, id, personnelID uint64, code string, amount float64) (*models.PickupRequest, error) {
	if !lifecycle.ValidOTP(code) {
		return nil, &lifecycle.Violation{Code: lifecycle.CodeInvalidOTPFormat, Message: "otp must be exactly 6 digits"}
	}
	if amount <= 0 {
		return nil, &lifecycle.Violation{Code: lifecycle.CodeInvalidAmount, Message: "amount must be positive"}
	}

	cur, err := s.repo.GetRequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := assignedTo(cur, personnelID); err != nil {
		return nil, err
	}
	if cur.Status != lifecycle.StatusOTPRequested {
		return nil, &lifecycle.Violation{
			Code:    lifecycle.CodeIllegalTransition,
			Message: fmt.Sprintf("verify requires OTP_REQUESTED, got %s", cur.Status),
		}
	}

	if err := s.otp.Verify(ctx, id, code); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	r, err := s.repo.CompleteWithCredit(ctx, id, func(r *models.PickupRequest) error {
		if err := assignedTo(r, personnelID); err != nil {
			return err
		}
		return lifecycle.Complete(r, amount, now)
	})
	if err != nil {
		return nil, err
	}

	s.cacheSnapshot(ctx, r)
	s.publish(ctx, messages.EventCompleted, r, nil)
	return r, nil
}

// Decorate наполняет availableActions под роль смотрящего.
func Decorate(r *models.PickupRequest, role string) *models.PickupRequest {
	r.AvailableActions = lifecycle.ActionsFor(r.Status, role, r.PickupResponseStatus)
	return r
}

func assignedTo(r *models.PickupRequest, personnelID uint64) error {
	if r.PickupPersonnelID == nil || *r.PickupPersonnelID != personnelID {
		return ErrNotAssigned
	}
	return nil
}

func (s *Service) cacheSnapshot(ctx context.Context, r *models.PickupRequest) {
	if s.cache == nil || s.snapshotTTL <= 0 {
		return
	}
	b, _ := json.Marshal(r)
	_ = s.cache.Set(ctx, snapshotKey(r.RequestID), b, s.snapshotTTL)
}

func (s *Service) publish(ctx context.Context, event string, r *models.PickupRequest, fill func(*messages.RequestUpdated)) {
	if s.producer == nil || s.topic == "" {
		return
	}

	m := messages.RequestUpdated{
		RequestID:  r.RequestID,
		Event:      event,
		Status:     r.Status,
		At:         time.Now().UTC(),
		UserID:     r.UserID,
		UserName:   r.UserName,
		UserEmail:  r.UserEmail,
		DeviceType: r.DeviceType,
		Brand:      r.Brand,
	}
	if r.AllocatedRange != nil {
		m.AllocatedRange = *r.AllocatedRange
	}
	if r.RejectionReason != nil {
		m.RejectionReason = *r.RejectionReason
	}
	if r.PickupPersonnelName != nil {
		m.PickupPersonnelName = *r.PickupPersonnelName
	}
	if r.PickupPersonnelEmail != nil {
		m.PickupPersonnelEmail = *r.PickupPersonnelEmail
	}
	if r.PickupDateTime != nil {
		m.PickupDateTime = r.PickupDateTime
	}
	m.PickupAddress = r.PickupAddress
	if r.PaymentAmount != nil {
		m.PaymentAmount = *r.PaymentAmount
	}
	if fill != nil {
		fill(&m)
	}

	b, err := json.Marshal(m)
	if err != nil {
		s.log.Error("marshal request event", "err", err, "request_id", r.RequestID)
		return
	}
	key := []byte(strconv.FormatUint(r.RequestID, 10))
	if err := s.producer.Publish(ctx, s.topic, key, b); err != nil {
		// Переход уже зафиксирован, событие теряем с логом, а не откатом.
		s.log.Error("publish request event", "err", err, "event", event, "request_id", r.RequestID)
	}
}

func snapshotKey(id uint64) string {
	return fmt.Sprintf("request:%d:current", id)
}

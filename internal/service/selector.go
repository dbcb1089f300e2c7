// selector.go — выбор случайного непроверенного архива в окне загрузки.
//
// Окно: [now - (age+margin) дней, now - margin дней], границы включены.
// Кандидаты — архивы с загрузкой в окне и без единой проверки за всё время.
// БД возвращает множество кандидатов, случайный выбор выполняется здесь.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/johanherman/snpseq-archive-db/internal/domain/model"
	"github.com/johanherman/snpseq-archive-db/internal/repository"
)

// Prometheus-метрики выбора кандидатов.
var candidateSelectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ad_candidate_selections_total",
	Help: "Количество запросов выбора кандидата на проверку по результату.",
}, []string{"result"})

// Rand — источник случайных индексов. *rand.Rand из math/rand/v2 подходит напрямую.
type Rand interface {
	// IntN возвращает число в [0, n). n > 0.
	IntN(n int) int
}

// globalRand — потокобезопасный источник на основе глобального генератора math/rand/v2.
type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// CandidateWindow — окно выбора по времени загрузки, обе границы включены.
type CandidateWindow struct {
	Start time.Time
	End   time.Time
}

// CandidateSelector — сервис выбора архива для проверки.
type CandidateSelector struct {
	events        repository.EventRepository
	maxWindowDays int
	now           func() time.Time
	logger        *slog.Logger

	mu  sync.Mutex // защищает rnd
	rnd Rand
}

// NewCandidateSelector создаёт сервис выбора кандидатов.
// maxWindowDays — верхняя граница age+margin (AD_MAX_WINDOW_DAYS).
func NewCandidateSelector(
	events repository.EventRepository,
	maxWindowDays int,
	logger *slog.Logger,
) *CandidateSelector {
	return NewCandidateSelectorWithSource(events, maxWindowDays, globalRand{}, time.Now, logger)
}

// NewCandidateSelectorWithSource создаёт сервис с указанными генератором и часами.
// Используется в тестах для детерминированного выбора.
func NewCandidateSelectorWithSource(
	events repository.EventRepository,
	maxWindowDays int,
	rnd Rand,
	now func() time.Time,
	logger *slog.Logger,
) *CandidateSelector {
	return &CandidateSelector{
		events:        events,
		maxWindowDays: maxWindowDays,
		now:           now,
		rnd:           rnd,
		logger:        logger.With(slog.String("component", "candidate_selector")),
	}
}

// Window вычисляет окно выбора относительно текущего времени.
// Отрицательные значения и окно шире maxWindowDays — ErrValidation.
func (s *CandidateSelector) Window(ageDays, marginDays int) (CandidateWindow, error) {
	if ageDays < 0 {
		return CandidateWindow{}, fmt.Errorf("%w: age не может быть отрицательным (%d)", ErrValidation, ageDays)
	}
	if marginDays < 0 {
		return CandidateWindow{}, fmt.Errorf("%w: safety_margin не может быть отрицательным (%d)", ErrValidation, marginDays)
	}
	// Сравнение без сложения: age + margin может переполнить int
	if marginDays > s.maxWindowDays || ageDays > s.maxWindowDays-marginDays {
		return CandidateWindow{}, fmt.Errorf("%w: age + safety_margin превышает %d дней", ErrValidation, s.maxWindowDays)
	}

	now := s.now().UTC()
	return CandidateWindow{
		Start: now.AddDate(0, 0, -(ageDays + marginDays)),
		End:   now.AddDate(0, 0, -marginDays),
	}, nil
}

// PickUnverifiedCandidate выбирает равновероятно один архив, загруженный
// в окне и ни разу не проверенный. Пустое множество — ErrNoCandidate.
func (s *CandidateSelector) PickUnverifiedCandidate(ctx context.Context, ageDays, marginDays int) (*model.Candidate, error) {
	window, err := s.Window(ageDays, marginDays)
	if err != nil {
		return nil, err
	}

	candidates, err := s.events.UnverifiedUploads(ctx, window.Start, window.End)
	if err != nil {
		candidateSelectionsTotal.WithLabelValues("error").Inc()
		s.logger.Error("Ошибка поиска кандидатов",
			slog.Time("window_start", window.Start),
			slog.Time("window_end", window.End),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if len(candidates) == 0 {
		candidateSelectionsTotal.WithLabelValues("empty").Inc()
		s.logger.Info("Нет непроверенных архивов в окне",
			slog.Int("age", ageDays),
			slog.Int("safety_margin", marginDays),
			slog.Time("window_start", window.Start),
			slog.Time("window_end", window.End),
		)
		return nil, ErrNoCandidate
	}

	picked := candidates[s.intN(len(candidates))]
	candidateSelectionsTotal.WithLabelValues("selected").Inc()

	s.logger.Info("Выбран архив для проверки",
		slog.String("description", picked.Description),
		slog.String("path", picked.Path),
		slog.Int("candidates", len(candidates)),
	)
	return picked, nil
}

func (s *CandidateSelector) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.IntN(n)
}

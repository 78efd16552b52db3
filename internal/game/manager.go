package game

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/blockroll/internal/logging"
	"github.com/annel0/blockroll/internal/replay"
	"github.com/annel0/blockroll/internal/storage"
)

// DefaultTickRate - частота тиков Manager.Run по умолчанию (раз в секунду)
const DefaultTickRate = 20

// Manager - реестр сессий и общий цикл тиков
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	levels  storage.LevelRepo
	replays storage.ReplayRepo // может быть nil
	opts    Options
}

// NewManager создает менеджер. opts передаются каждой новой сессии.
func NewManager(levels storage.LevelRepo, replays storage.ReplayRepo, opts Options) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		levels:   levels,
		replays:  replays,
		opts:     opts,
	}
}

// Levels возвращает репозиторий уровней
func (m *Manager) Levels() storage.LevelRepo { return m.levels }

// Replays возвращает репозиторий записей (может быть nil)
func (m *Manager) Replays() storage.ReplayRepo { return m.replays }

// Create загружает уровень и запускает на нем новую сессию
func (m *Manager) Create(ctx context.Context, levelID string) (*Session, error) {
	lvl, err := m.levels.Get(ctx, levelID)
	if err != nil {
		return nil, err
	}

	s, err := NewSession(uuid.NewString(), lvl, m.opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s, nil
}

// Get возвращает сессию по ID
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Remove завершает сессию. Непустая запись сохраняется в репозиторий записей.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	if _, err := m.SaveReplay(ctx, s); err != nil {
		logging.Warn("сессия %s: запись не сохранена: %v", id, err)
	}
	logging.Debug("сессия %s удалена", id)
	return nil
}

// SaveReplay сохраняет запись текущей попытки сессии.
// Без репозитория записей или без ходов ничего не делает.
func (m *Manager) SaveReplay(ctx context.Context, s *Session) (*replay.Recording, error) {
	rec := s.Recording()
	if m.replays == nil || len(rec.Steps) == 0 {
		return rec, nil
	}
	if err := m.replays.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// List возвращает сессии, отсортированные по времени создания
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].id < out[j].id
		}
		return out[i].createdAt.Before(out[j].createdAt)
	})
	return out
}

// Count возвращает число активных сессий
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// TickAll продвигает все сессии на dt секунд
func (m *Manager) TickAll(dt float64) {
	for _, s := range m.List() {
		s.Tick(dt)
	}
}

// Run тикает все сессии tickRate раз в секунду до отмены контекста
func (m *Manager) Run(ctx context.Context, tickRate int) {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	interval := time.Second / time.Duration(tickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Info("⏱️ цикл сессий запущен: %d тиков/с", tickRate)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			logging.Info("цикл сессий остановлен")
			return
		case now := <-ticker.C:
			m.TickAll(now.Sub(last).Seconds())
			last = now
		}
	}
}

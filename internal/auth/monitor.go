package auth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/auth/models"
	authstore "github.com/taskflow/taskflow/internal/auth/store"
	"github.com/taskflow/taskflow/internal/common/errors"
	"github.com/taskflow/taskflow/internal/common/logger"
)

// Refresher triggers the token-refresh intent. Implemented by the dispatcher.
type Refresher interface {
	RefreshToken(ctx context.Context) (*models.Session, error)
}

// Monitor polls the session and dispatches a refresh when the access token
// is close to expiry. Concurrent refreshes are suppressed: a poll is
// skipped while one is already in flight.
type Monitor struct {
	sessions  *authstore.Store
	refresher Refresher
	interval  time.Duration
	threshold time.Duration
	clock     func() time.Time
	logger    *logger.Logger
}

// NewMonitor creates a refresh monitor.
func NewMonitor(sessions *authstore.Store, refresher Refresher, interval, threshold time.Duration, log *logger.Logger) *Monitor {
	return &Monitor{
		sessions:  sessions,
		refresher: refresher,
		interval:  interval,
		threshold: threshold,
		clock:     time.Now,
		logger:    log,
	}
}

// Run polls until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	session := m.sessions.Session()
	if session == nil || m.sessions.IsRefreshing() {
		return
	}
	if !session.AccessExpiresWithin(m.clock(), m.threshold) {
		return
	}

	if _, err := m.refresher.RefreshToken(ctx); err != nil {
		if errors.IsSuperseded(err) {
			return
		}
		m.logger.Warn("token refresh failed", zap.Error(err))
		return
	}
	m.logger.Debug("access token refreshed")
}

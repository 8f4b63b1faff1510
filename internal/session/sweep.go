package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hayate/erabu/internal/models"
)

// RunSweeper periodically expires idle sessions. A session expires when
// its idle time strictly exceeds the configured timeout; a session idle
// for exactly the timeout stays active. Blocks until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context) {
	if !m.cfg.Session.Expiration.Enabled {
		m.logger.Info("session expiration disabled")
		return
	}
	interval := m.cfg.Session.Expiration.CheckInterval()
	timeout := m.cfg.Session.Expiration.SessionTimeout()

	m.logger.Info("session sweeper started",
		zap.Duration("check_interval", interval),
		zap.Duration("session_timeout", timeout),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			m.sweep(time.Now(), timeout)
		}
	}
}

// sweep expires every active session idle for strictly longer than timeout
// as of now. Idle time equal to the timeout is not expiration.
func (m *Manager) sweep(now time.Time, timeout time.Duration) {
	m.mu.RLock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.RUnlock()

	expired := 0
	for _, s := range candidates {
		s.mu.Lock()
		if s.state == models.SessionActive && now.Sub(s.lastActivity) > timeout {
			s.state = models.SessionExpired
			s.release()
			expired++
			m.logger.Info("session expired",
				zap.String("session_id", s.id),
				zap.Time("last_activity", s.lastActivity),
			)
		}
		s.mu.Unlock()
	}
	if expired > 0 {
		m.logger.Info("sweep finished", zap.Int("expired", expired))
	}
}

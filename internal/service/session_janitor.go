package service

import (
	"context"
	"log"
	"time"
)

// JanitorConfig holds settings for the session janitor.
type JanitorConfig struct {
	PollInterval time.Duration
	SessionTTL   time.Duration
}

// SessionJanitor evicts import sessions that have sat idle past their TTL.
// Sessions live only in memory, so without it every abandoned upload would be
// pinned until restart.
type SessionJanitor struct {
	imports ImportService
	cfg     JanitorConfig
}

// NewSessionJanitor creates a new SessionJanitor.
func NewSessionJanitor(imports ImportService, cfg JanitorConfig) *SessionJanitor {
	return &SessionJanitor{imports: imports, cfg: cfg}
}

// Start runs the eviction loop until ctx is canceled.
func (j *SessionJanitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.PollInterval)
	defer ticker.Stop()

	log.Printf("sessionJanitor: started (poll=%s, ttl=%s)", j.cfg.PollInterval, j.cfg.SessionTTL)

	for {
		select {
		case <-ctx.Done():
			log.Printf("sessionJanitor: shutdown complete")
			return
		case <-ticker.C:
			if n := j.imports.EvictIdleSessions(j.cfg.SessionTTL); n > 0 {
				log.Printf("sessionJanitor: evicted %d idle session(s)", n)
			}
		}
	}
}

package service

import (
	"context"
	"errors"
	"time"

	"shotwatch/internal/watcher"
)

// restartWatch runs when the watched directory is removed or renamed.
func (s *Service) restartWatch() {
	_ = s.watcher.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return
	}
	s.startRetryLocked(s.runCtx)
}

// startRetryLocked keeps trying to start the watcher with exponential backoff.
// Only one retry loop runs at a time. s.mu must be held.
func (s *Service) startRetryLocked(ctx context.Context) {
	if s.retrying {
		return
	}
	s.retrying = true
	target := s.target
	s.workers.Add(1)

	go func() {
		defer s.workers.Done()
		defer func() {
			s.mu.Lock()
			s.retrying = false
			s.mu.Unlock()
		}()

		backoff := s.options.RetryInitial
		timer := time.NewTimer(backoff)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			err := s.watcher.Start(target, s.onCreate)
			if err == nil || errors.Is(err, watcher.ErrAlreadyStarted) {
				s.logger.Info("watch established", map[string]string{
					"path": target.Path,
				})
				return
			}
			s.logger.Debug("watch retry failed", map[string]string{
				"path":  target.Path,
				"error": err.Error(),
			})
			if backoff < s.options.RetryMax {
				backoff *= 2
				if backoff > s.options.RetryMax {
					backoff = s.options.RetryMax
				}
			}
			timer.Reset(backoff)
		}
	}()
}

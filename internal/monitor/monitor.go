// Package monitor periodically samples server status, rewrites it to a
// status file and serves the latest sample over HTTP.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/bouncelog/internal/storage"
)

const defaultInterval = time.Second

// Status is one sample of the server's state.
type Status struct {
	Time          time.Time `json:"time"`
	StorageType   string    `json:"storageType"`
	Entries       int       `json:"entries"`
	Clients       int       `json:"clients"`
	UptimeSeconds float64   `json:"uptimeSeconds"`
	StorageError  string    `json:"storageError,omitempty"`
}

// Dependencies holds all dependencies for the monitor service. Clients and
// StatusPath are optional.
type Dependencies struct {
	Backend     storage.Backend
	StorageType string
	Clients     func() int
	StatusPath  string
	Interval    time.Duration
	Logger      *slog.Logger
}

// Service manages status monitoring
type Service struct {
	deps    Dependencies
	started time.Time

	mu        sync.RWMutex
	isRunning bool
	stopChan  chan struct{}
	doneChan  chan struct{}
	last      Status
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:    deps,
		started: time.Now(),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Sample collects the current status and remembers it as the latest one.
func (s *Service) Sample(ctx context.Context) Status {
	st := Status{
		Time:          time.Now().UTC(),
		StorageType:   s.deps.StorageType,
		UptimeSeconds: time.Since(s.started).Seconds(),
	}
	if s.deps.Clients != nil {
		st.Clients = s.deps.Clients()
	}
	if s.deps.Backend != nil {
		rows, err := s.deps.Backend.ListAll(ctx)
		if err != nil {
			st.StorageError = err.Error()
		} else {
			st.Entries = len(rows)
		}
	}

	s.mu.Lock()
	s.last = st
	s.mu.Unlock()
	return st
}

// Last returns the most recent sample.
func (s *Service) Last() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// ServeHTTP writes a fresh sample as JSON.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := s.Sample(r.Context())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.deps.Logger.Warn("Failed to write status", "error", err)
	}
}

// Start starts the status monitor goroutine. It stops on Stop or when ctx
// is done.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	stop, done := s.stopChan, s.doneChan
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(done)
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		var statusFile *os.File
		if s.deps.StatusPath != "" {
			f, err := os.Create(s.deps.StatusPath)
			if err != nil {
				logger.Error("Error creating status file", "error", err)
			} else {
				statusFile = f
				defer statusFile.Close()
			}
		}

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := s.Sample(ctx)
				if st.StorageError != "" {
					logger.Warn("Status sample failed to read storage", "error", st.StorageError)
				}
				if statusFile != nil {
					if err := writeStatus(statusFile, st); err != nil {
						logger.Error("Error writing status file", "error", err)
					}
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for its goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.doneChan
	s.mu.Unlock()
	<-done
}

func writeStatus(f *os.File, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

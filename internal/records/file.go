// Package records persists finished hand records. The core emits a
// HandRecord per hand through a sink; this package's FileSink appends them
// as JSON lines with buffered, periodically flushed writes.
package records

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sixmax/plosrv/internal/protocol"
)

const defaultFlushInterval = 10 * time.Second

// FileSink appends hand records to a JSON-lines file
type FileSink struct {
	logger *log.Logger

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	stop   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewFileSink opens path for appending and starts the flush ticker
func NewFileSink(path string, logger *log.Logger, flushInterval time.Duration) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	s := &FileSink{
		logger: logger.WithPrefix("records"),
		file:   f,
		writer: bufio.NewWriter(f),
		stop:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.flushLoop(flushInterval)
	return s, nil
}

// RecordHand appends one record. Write errors are logged, not returned: hand
// history must never stall a table.
func (s *FileSink) RecordHand(rec protocol.HandRecord) {
	b, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("failed to encode hand record", "hand", rec.HandID, "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, err := s.writer.Write(append(b, '\n')); err != nil {
		s.logger.Error("failed to write hand record", "hand", rec.HandID, "err", err)
	}
}

func (s *FileSink) flushLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.stop:
			return
		}
	}
}

func (s *FileSink) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if err := s.writer.Flush(); err != nil {
		s.logger.Error("failed to flush hand records", "err", err)
	}
}

// Close flushes and closes the file
func (s *FileSink) Close() error {
	close(s.stop)
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}

// Package calendar answers busy/free questions for the client's schedule.
// The mock implementation produces deterministic busy blocks so simulated
// campaigns behave identically across runs.
package calendar

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"callpilot/config"
)

// Service is the common interface implemented by mock and real calendars.
type Service interface {
	IsFree(ctx context.Context, start, end time.Time) (bool, error)
}

// UnavailableError is returned when the calendar backend cannot be reached.
// Callers treat this fail-closed: a slot that cannot be verified is skipped.
type UnavailableError struct {
	Message string
}

func (e *UnavailableError) Error() string {
	if e.Message == "" {
		return "calendar unavailable"
	}
	return e.Message
}

// MockService is a deterministic calendar with stable busy blocks: a fixed
// 12:00-13:00 lunch block plus one extra hour derived from the date hash.
type MockService struct{}

func NewMockService() *MockService {
	return &MockService{}
}

func (m *MockService) IsFree(ctx context.Context, start, end time.Time) (bool, error) {
	start = start.UTC()
	end = end.UTC()

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	for !day.After(endDay) {
		for _, block := range busyBlocks(day) {
			if intervalsOverlap(start, end, block.start, block.end) {
				return false, nil
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return true, nil
}

type interval struct {
	start time.Time
	end   time.Time
}

// extra busy block start times, selected by date hash
var extraStarts = []int{8 * 60, 9*60 + 30, 10 * 60, 14 * 60, 15*60 + 30, 16 * 60}

func busyBlocks(day time.Time) []interval {
	blocks := []interval{
		{start: day.Add(12 * time.Hour), end: day.Add(13 * time.Hour)},
	}

	sum := sha256.Sum256([]byte(day.Format("2006-01-02")))
	h := binary.BigEndian.Uint64(sum[:8]) % uint64(len(extraStarts))
	extra := day.Add(time.Duration(extraStarts[h]) * time.Minute)
	blocks = append(blocks, interval{start: extra, end: extra.Add(time.Hour)})
	return blocks
}

func intervalsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// GetService returns the calendar implementation selected by configuration.
// Only the deterministic mock ships in-process; a real backend would slot in
// behind the same interface.
func GetService(cfg config.Config) Service {
	return NewMockService()
}

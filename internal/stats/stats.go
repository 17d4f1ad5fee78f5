// Package stats считает сводку по запросам за период.
package stats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/UkralStul/requestwatch/internal/domain"
)

// ErrNoData - за период не создано ни одного поста, доли не определены.
var ErrNoData = errors.New("no data")

// Counter - часть хранилища, нужная для статистики.
type Counter interface {
	CountSince(ctx context.Context, since time.Time) (int64, error)
	CountSinceWithState(ctx context.Context, since time.Time, state domain.SubmissionState) (int64, error)
}

// Report - сводка за период.
type Report struct {
	Hours   int                              `json:"hours"`
	Since   time.Time                        `json:"since"`
	Total   int64                            `json:"total"`
	ByState map[domain.SubmissionState]int64 `json:"byState"`
}

// Rates - доли итоговых статусов.
type Rates struct {
	Granted      float64 `json:"granted"`
	Denied       float64 `json:"denied"`
	ManualReview float64 `json:"manualReview"`
}

// Build собирает отчёт за последние hours часов.
func Build(ctx context.Context, c Counter, now time.Time, hours int) (*Report, error) {
	if hours <= 0 {
		return nil, fmt.Errorf("hours must be positive, got %d", hours)
	}
	since := now.Add(-time.Duration(hours) * time.Hour)

	total, err := c.CountSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}
	r := &Report{Hours: hours, Since: since, Total: total, ByState: make(map[domain.SubmissionState]int64, len(domain.SubmissionStates))}
	for _, s := range domain.SubmissionStates {
		n, err := c.CountSinceWithState(ctx, since, s)
		if err != nil {
			return nil, fmt.Errorf("count %s posts: %w", s, err)
		}
		r.ByState[s] = n
	}
	return r, nil
}

// Rates возвращает ErrNoData, если постов нет.
func (r *Report) Rates() (Rates, error) {
	if r.Total == 0 {
		return Rates{}, ErrNoData
	}
	total := float64(r.Total)
	return Rates{
		Granted:      float64(r.ByState[domain.StateGranted]) / total,
		Denied:       float64(r.ByState[domain.StateDenied]) / total,
		ManualReview: float64(r.ByState[domain.StateManualReview]) / total,
	}, nil
}

// Write печатает отчёт в текстовом виде.
func (r *Report) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Requests in the last %d hours: %d\n", r.Hours, r.Total); err != nil {
		return err
	}
	for _, s := range domain.SubmissionStates {
		if _, err := fmt.Fprintf(w, "  %-14s %d\n", s, r.ByState[s]); err != nil {
			return err
		}
	}

	rates, err := r.Rates()
	if errors.Is(err, ErrNoData) {
		_, err = fmt.Fprintln(w, "Rates: no data")
		return err
	}
	_, err = fmt.Fprintf(w, "Rates: granted %.1f%%, denied %.1f%%, manual review %.1f%%\n",
		rates.Granted*100, rates.Denied*100, rates.ManualReview*100)
	return err
}

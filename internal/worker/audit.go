// Package worker contains the background jobs run by the glaz-worker binary:
// the account-event audit journal and the scheduled backup loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"glaz/internal/amqp"
)

// AuditWorker appends consumed account events to an append-only journal,
// one JSON object per line.
type AuditWorker struct {
	mu   sync.Mutex
	path string
}

func NewAuditWorker(path string) *AuditWorker {
	return &AuditWorker{path: path}
}

type auditRecord struct {
	AccountID  int64     `json:"accountId"`
	Action     string    `json:"action"`
	OccurredAt time.Time `json:"occurredAt"`
	RecordedAt time.Time `json:"recordedAt"`
}

// HandleEvent records a single account event. Returning an error requeues
// the message, so the journal write must succeed before we ack.
func (w *AuditWorker) HandleEvent(msg *amqp.AccountEventMessage) error {
	record := auditRecord{
		AccountID:  msg.ID,
		Action:     msg.Action,
		OccurredAt: msg.Timestamp,
		RecordedAt: time.Now().UTC(),
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}

	slog.Info("Account event recorded",
		"account_id", msg.ID,
		"action", msg.Action)
	return nil
}

// Tail returns the most recent n journal records, oldest first. Lines that
// fail to parse are skipped.
func (w *AuditWorker) Tail(n int) ([]AuditEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read journal: %w", err)
	}

	var entries []AuditEntry
	for _, line := range splitLines(data) {
		var record auditRecord
		if err := json.Unmarshal(line, &record); err != nil {
			continue
		}
		entries = append(entries, AuditEntry{
			AccountID:  record.AccountID,
			Action:     record.Action,
			OccurredAt: record.OccurredAt,
			RecordedAt: record.RecordedAt,
		})
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// AuditEntry is a parsed journal record.
type AuditEntry struct {
	AccountID  int64     `json:"accountId"`
	Action     string    `json:"action"`
	OccurredAt time.Time `json:"occurredAt"`
	RecordedAt time.Time `json:"recordedAt"`
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

// Consume runs the audit loop against the given AMQP client until the
// context is canceled.
func (w *AuditWorker) Consume(ctx context.Context, client *amqp.Client) error {
	return client.ConsumeAccountEvents(ctx, w.HandleEvent)
}

// Package sender pushes notification batches inserted by the engine to
// out-of-band channels. The notifications table stays the source of truth;
// a sink failure never undoes an insert.
package sender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"text/template"
	"time"

	"github.com/metricboard/notifier/internal/dedup"
	"github.com/metricboard/notifier/internal/models"
	"golang.org/x/sync/errgroup"
)

// Broadcast is one notification class fanned out to its recipients.
type Broadcast struct {
	Key           dedup.Key
	Title         string
	Message       string
	Type          string
	Notifications []models.Notification
}

// UserIDs returns recipient ids in insert order.
func (b Broadcast) UserIDs() []string {
	ids := make([]string, 0, len(b.Notifications))
	for _, n := range b.Notifications {
		ids = append(ids, n.UserID)
	}
	return ids
}

// Sink delivers a broadcast somewhere.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, b Broadcast) error
}

// Multi delivers to every sink concurrently and joins their errors.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Deliver(ctx context.Context, b Broadcast) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range m {
		s := s
		g.Go(func() error {
			if err := s.Deliver(ctx, b); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Nop drops everything.
type Nop struct{}

func (Nop) Name() string                             { return "nop" }
func (Nop) Deliver(context.Context, Broadcast) error { return nil }

const maxSendRetries = 3

var retryDelay = time.Second

// retry runs fn up to attempts times with a linearly growing delay.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

var summaryTpl = template.Must(template.New("summary").Parse(
	`{{.Title}}
{{.Message}}

Destinatários: {{len .Notifications}}`))

// RenderSummary renders the chat text for a broadcast.
func RenderSummary(b Broadcast) (string, error) {
	var buf bytes.Buffer
	if err := summaryTpl.Execute(&buf, b); err != nil {
		return "", err
	}
	return buf.String(), nil
}

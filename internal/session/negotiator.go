// Package session negotiates playback sessions with the legacy XML delivery
// service and keeps them alive with periodic heartbeats.
package session

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayanobu/nicofetch/internal/domain"
	"github.com/ayanobu/nicofetch/internal/metrics"
	"github.com/ayanobu/nicofetch/internal/transport"
)

// HeartbeatInterval is how often the delivery service expects a keep-alive.
const HeartbeatInterval = 15 * time.Second

type Negotiator struct {
	client *transport.Client
	log    *slog.Logger
}

func NewNegotiator(client *transport.Client, log *slog.Logger) *Negotiator {
	return &Negotiator{client: client, log: log}
}

// Session is a live delivery session. ContentURI is the playable URL; the
// heartbeat must be started (and its context cancelled when the download
// ends, however it ends) to keep the URL valid.
type Session struct {
	ContentURI string

	client       *transport.Client
	log          *slog.Logger
	heartbeatURL string
	interval     time.Duration

	mu  sync.Mutex
	doc []byte // last session element returned by the service
}

// Negotiate builds the session document, posts it, and returns the
// resulting session. The heartbeat is not yet running.
func (n *Negotiator) Negotiate(ctx context.Context, plan *domain.LegacySession) (*Session, error) {
	doc, err := buildDocument(plan)
	if err != nil {
		return nil, err
	}

	postURL := plan.SessionURL + "?suppress_response_codes=true&_format=xml"
	body, err := n.client.Post(ctx, postURL, "application/xml", string(doc), nil)
	if err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}

	element, err := extractSessionElement(body)
	if err != nil {
		return nil, err
	}

	var fields sessionFields
	if err := xml.Unmarshal(element, &fields); err != nil {
		return nil, domain.ParameterExtractionf("malformed session element: %v", err)
	}
	if fields.ContentURI == "" {
		return nil, domain.ParameterExtractionf("session response has no content URI")
	}
	if fields.ID == "" {
		return nil, domain.ParameterExtractionf("session response has no session id")
	}

	return &Session{
		ContentURI:   fields.ContentURI,
		client:       n.client,
		log:          n.log,
		heartbeatURL: fmt.Sprintf("%s/%s?_format=xml&_method=PUT", plan.SessionURL, fields.ID),
		interval:     HeartbeatInterval,
		doc:          element,
	}, nil
}

// StartHeartbeat launches the keep-alive loop. Every interval it posts the
// previously returned session element and replaces it with the fresh one
// from the response. The loop ends when ctx is cancelled or a heartbeat
// fails (a failed heartbeat means the session is gone anyway). The returned
// channel closes when the loop has fully stopped.
func (s *Session) StartHeartbeat(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.beat(ctx); err != nil {
					if ctx.Err() == nil {
						s.log.Error("heartbeat failed, stopping keep-alive", "error", err)
					}
					return
				}
			}
		}
	}()
	return done
}

func (s *Session) beat(ctx context.Context) error {
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()

	body, err := s.client.Post(ctx, s.heartbeatURL, "application/xml", string(doc), nil)
	if err != nil {
		return err
	}

	element, err := extractSessionElement(body)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.doc = element
	s.mu.Unlock()

	metrics.HeartbeatsSent.Inc()
	s.log.Debug("heartbeat acknowledged")
	return nil
}

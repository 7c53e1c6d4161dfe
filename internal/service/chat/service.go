package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/parkpal/tagchat/backend/internal/model/chat"
)

const (
	// SessionTTL bounds every conversation; after it elapses the session is
	// authoritatively dead regardless of client behavior.
	SessionTTL = 30 * time.Minute

	// MaxMessageLength bounds sanitized message text.
	MaxMessageLength = 500

	// MaxSessionIDLength rejects obviously bogus identifiers before lookup.
	MaxSessionIDLength = 100

	// AnonymousLabel is assigned when a scanner declines to identify.
	AnonymousLabel = "Anonymous"
)

var (
	ErrVehicleRequired     = errors.New("vehicle ref is required")
	ErrInvalidSessionID    = errors.New("invalid session id")
	ErrSessionExpired      = errors.New("session is no longer active")
	ErrInvalidSender       = errors.New("invalid sender role")
	ErrEmptyMessage        = errors.New("message is empty")
	ErrMessageTooLong      = errors.New("message exceeds maximum length")
	ErrScannerUnidentified = errors.New("scanner has not identified yet")
)

// sessionState bundles a registry entry with its message log. All access goes
// through Service.mu, which is the single serialization point the
// one-active-session-per-vehicle invariant relies on.
type sessionState struct {
	session  chat.Session
	messages []chat.Message
	nextSeq  int
}

// Service is the ephemeral chat engine: session lifecycle, message log, and
// fan-out to live subscribers. State is process-local; nothing survives a
// session end, which is the point of the privacy model.
type Service struct {
	mu        sync.Mutex
	byVehicle map[string]*sessionState
	bySession map[string]*sessionState
	hub       *hub

	now func() time.Time
}

// NewService bootstraps the in-memory chat engine.
func NewService() *Service {
	return &Service{
		byVehicle: make(map[string]*sessionState),
		bySession: make(map[string]*sessionState),
		hub:       newHub(),
		now:       time.Now,
	}
}

// GetOrCreateSession resolves the live session for a vehicle, creating one
// when none exists. Reuse is idempotent: every caller inside the TTL window
// observes the same session. Creation is serialized under the registry lock,
// so concurrent callers converge on a single winner; losing the race is not
// an error, the loser simply receives the winner's session.
func (s *Service) GetOrCreateSession(_ context.Context, vehicleRef string) (chat.Session, error) {
	vehicleRef = strings.TrimSpace(vehicleRef)
	if vehicleRef == "" {
		return chat.Session{}, ErrVehicleRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if st, ok := s.byVehicle[vehicleRef]; ok {
		if st.session.Live(now) {
			return st.session, nil
		}
		// Stale entry: purge leftovers before minting a replacement.
		s.teardownLocked(st)
	}

	session := chat.Session{
		ID:         newSessionID(vehicleRef, now),
		VehicleRef: vehicleRef,
		CreatedAt:  now,
		ExpiresAt:  now.Add(SessionTTL),
		IsActive:   true,
	}
	st := &sessionState{session: session}
	s.byVehicle[vehicleRef] = st
	s.bySession[session.ID] = st

	log.Printf("[chat] session %s opened for vehicle %s", session.ID, vehicleRef)
	return session, nil
}

// newSessionID embeds the vehicle ref and creation instant, plus a short
// random suffix so retries within the same millisecond stay distinct.
func newSessionID(vehicleRef string, now time.Time) string {
	return fmt.Sprintf("chat_%s_%d_%s", vehicleRef, now.UnixMilli(), uuid.NewString()[:8])
}

// SetScannerLabel records the display label the scanner chose for the whole
// session. An empty or markup-only label resolves to the anonymous
// placeholder; either way the identification gate opens for this session.
func (s *Service) SetScannerLabel(_ context.Context, vehicleRef, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byVehicle[vehicleRef]
	if !ok || !st.session.Live(s.now()) {
		return ErrSessionExpired
	}

	label = SanitizeText(label)
	if label == "" {
		label = AnonymousLabel
	}
	st.session.ScannerLabel = label
	return nil
}

// Append validates, sanitizes, and stores one message, then pushes the full
// ordered log to every subscriber before returning. The live-session check
// here is the authoritative expiry enforcement point: an append arriving
// after ExpiresAt is rejected no matter what any client clock says.
func (s *Service) Append(_ context.Context, sessionID string, sender chat.Sender, rawText string) (chat.Message, error) {
	if sessionID == "" || len(sessionID) > MaxSessionIDLength {
		return chat.Message{}, ErrInvalidSessionID
	}

	s.mu.Lock()

	st, ok := s.bySession[sessionID]
	now := s.now()
	if !ok || !st.session.Live(now) {
		s.mu.Unlock()
		return chat.Message{}, ErrSessionExpired
	}
	if !sender.Valid() {
		s.mu.Unlock()
		return chat.Message{}, ErrInvalidSender
	}
	if sender == chat.SenderScanner && st.session.ScannerLabel == "" {
		s.mu.Unlock()
		return chat.Message{}, ErrScannerUnidentified
	}

	text := SanitizeText(rawText)
	if text == "" {
		s.mu.Unlock()
		return chat.Message{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		s.mu.Unlock()
		return chat.Message{}, ErrMessageTooLong
	}

	st.nextSeq++
	msg := chat.Message{
		ID:        fmt.Sprintf("%06d", st.nextSeq),
		SessionID: sessionID,
		Sender:    sender,
		Text:      text,
		Timestamp: now,
	}
	st.messages = append(st.messages, msg)
	snapshot := append([]chat.Message(nil), st.messages...)
	// Published under the lock so snapshots reach every mailbox in append
	// order; the hub never re-enters the service, so nesting is safe.
	s.hub.publish(sessionID, snapshot)
	s.mu.Unlock()

	return msg, nil
}

// Transcript returns a copy of the ordered message log for a live session.
func (s *Service) Transcript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.bySession[sessionID]
	if !ok || !st.session.Live(s.now()) {
		return nil, ErrSessionExpired
	}
	return append([]chat.Message(nil), st.messages...), nil
}

// Subscribe opens a live view of the session's full ordered message list.
// The callback fires immediately with current state, then again with the
// complete re-sorted list after every append (full state, never deltas).
// The returned cancel func stops delivery and is safe to call repeatedly.
func (s *Service) Subscribe(sessionID string, onMessages func([]chat.Message)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.bySession[sessionID]
	if !ok || !st.session.Live(s.now()) {
		return nil, ErrSessionExpired
	}
	snapshot := append([]chat.Message(nil), st.messages...)

	// Registration happens under the same lock as snapshot capture, so no
	// append can publish between the two: the view opens current and stays
	// current.
	return s.hub.subscribe(sessionID, snapshot, onMessages), nil
}

// EndSession closes the session and purges its messages. The session-id guard
// keeps a stale client from ending a newer session for the same vehicle.
// Ending an already-ended or mismatched session is a no-op.
func (s *Service) EndSession(_ context.Context, vehicleRef, sessionID string) error {
	s.mu.Lock()
	st, ok := s.byVehicle[vehicleRef]
	if !ok || st.session.ID != sessionID {
		s.mu.Unlock()
		return nil
	}
	if st.session.IsActive {
		log.Printf("[chat] session %s ended for vehicle %s", sessionID, vehicleRef)
	}
	st.session.IsActive = false
	st.messages = nil
	delete(s.bySession, sessionID)
	s.mu.Unlock()

	s.hub.closeSession(sessionID)
	return nil
}

// TimeRemaining reports whole minutes left in the vehicle's live session,
// rounded up; 0 when no live session exists. Side-effect-free.
func (s *Service) TimeRemaining(_ context.Context, vehicleRef string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byVehicle[vehicleRef]
	if !ok || !st.session.IsActive {
		return 0
	}
	rem := st.session.ExpiresAt.Sub(s.now())
	if rem <= 0 {
		return 0
	}
	return int((rem + time.Minute - 1) / time.Minute)
}

// StartSweeper launches a background sweep that closes sessions whose window
// has elapsed and purges their messages. Housekeeping only: the live-session
// check in Append stays authoritative whether or not the sweeper runs.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.sweepExpired(); n > 0 {
					log.Printf("[chat] swept %d expired session(s)", n)
				}
			}
		}
	}()
}

func (s *Service) sweepExpired() int {
	s.mu.Lock()
	now := s.now()
	var ended []string
	for _, st := range s.byVehicle {
		if st.session.IsActive && !now.Before(st.session.ExpiresAt) {
			st.session.IsActive = false
			st.messages = nil
			delete(s.bySession, st.session.ID)
			ended = append(ended, st.session.ID)
		}
	}
	s.mu.Unlock()

	for _, id := range ended {
		s.hub.closeSession(id)
	}
	return len(ended)
}

// teardownLocked removes a stale session's remaining state. Caller holds mu;
// the hub has its own lock and never re-enters the service.
func (s *Service) teardownLocked(st *sessionState) {
	delete(s.bySession, st.session.ID)
	st.messages = nil
	s.hub.closeSession(st.session.ID)
}

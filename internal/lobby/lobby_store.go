// internal/lobby/lobby_store.go
package lobby

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultSweepInterval is how often idle lobbies are scanned for eviction.
const DefaultSweepInterval = 60 * time.Second

// Options configures a Store. Zero values fall back to sensible defaults.
type Options struct {
	Clock         Clock
	Notifier      Notifier
	Logger        logrus.FieldLogger
	SweepInterval time.Duration
}

// Store manages active ephemeral lobbies in memory.
// It is the only mutator of lobby state: callers receive deep copies and must go
// through Store operations to change anything.
type Store struct {
	mu      sync.Mutex        // Protects lobbies, seq and every field of every lobby.
	lobbies map[string]*Lobby // Map of lobby ID to Lobby.
	seq     int64             // Last sequence number handed to an event.

	clock    Clock
	notifier Notifier
	logger   logrus.FieldLogger
	interval time.Duration

	loopMu sync.Mutex // Guards cancel/done so Start and Shutdown can race safely.
	cancel context.CancelFunc
	done   chan struct{}
}

// NewStore initializes and returns an empty Store. Call Start to begin sweeping.
func NewStore(opts Options) *Store {
	s := &Store{
		lobbies:  make(map[string]*Lobby),
		clock:    opts.Clock,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		interval: opts.SweepInterval,
	}
	if s.clock == nil {
		s.clock = SystemClock
	}
	if s.notifier == nil {
		s.notifier = NotifierFunc(func(Event) {})
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	if s.interval <= 0 {
		s.interval = DefaultSweepInterval
	}
	return s
}

// Start launches the background sweep. It runs every SweepInterval until ctx is
// done or Shutdown is called. Calling Start on a running store is a no-op.
func (s *Store) Start(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
	s.logger.WithField("interval", s.interval).Info("LobbyStore: sweep started")
}

// Shutdown stops the sweep and drops every lobby without emitting LOBBY_DELETE.
// It is a bulk teardown, not a series of deletions, and is safe to call twice.
func (s *Store) Shutdown() {
	s.loopMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.loopMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	s.mu.Lock()
	n := len(s.lobbies)
	clear(s.lobbies)
	s.mu.Unlock()

	s.logger.WithField("dropped", n).Info("LobbyStore: shut down")
}

// Create inserts a lobby keyed by seed.ID. The ID is trusted to be unique; an
// existing lobby with the same ID is replaced. CreatedAt and LastActivity are set
// to now regardless of what the seed carries.
func (s *Store) Create(seed Lobby) Lobby {
	s.mu.Lock()
	now := s.clock.Now()
	l := &Lobby{
		ID:                 seed.ID,
		ApplicationID:      seed.ApplicationID,
		Metadata:           maps.Clone(seed.Metadata),
		Members:            dedupMembers(seed.Members),
		LinkedChannel:      seed.LinkedChannel,
		IdleTimeoutSeconds: seed.IdleTimeoutSeconds,
		CreatedAt:          now,
		LastActivity:       now,
	}
	if _, exists := s.lobbies[l.ID]; exists {
		s.logger.WithField("lobby_id", l.ID).Warn("LobbyStore: overwriting existing lobby")
	}
	s.lobbies[l.ID] = l
	out := l.clone()
	evt := s.lobbyEventLocked(EventLobbyCreate, l)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"lobby_id":       out.ID,
		"application_id": out.ApplicationID,
		"members":        len(out.Members),
	}).Debug("LobbyStore: created lobby")
	s.dispatch(evt)
	return out
}

// Get returns a copy of the lobby. It does not count as activity; call Touch for that.
func (s *Store) Get(id string) (Lobby, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[id]
	if !ok {
		return Lobby{}, false
	}
	return l.clone(), true
}

// List returns copies of every lobby owned by applicationID. An empty
// applicationID lists everything.
func (s *Store) List(applicationID string) []Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Lobby, 0, len(s.lobbies))
	for _, l := range s.lobbies {
		if applicationID != "" && l.ApplicationID != applicationID {
			continue
		}
		out = append(out, l.clone())
	}
	return out
}

// Len returns the number of active lobbies.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lobbies)
}

// Touch refreshes the lobby's last activity. Absent lobbies are ignored.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.lobbies[id]; ok {
		l.touch(s.clock.Now())
	}
}

// Update merges the non-nil fields of u into the lobby and emits LOBBY_UPDATE.
// An empty Update still counts as activity.
func (s *Store) Update(id string, u Update) (Lobby, bool) {
	s.mu.Lock()
	l, ok := s.lobbies[id]
	if !ok {
		s.mu.Unlock()
		return Lobby{}, false
	}

	if u.Metadata != nil {
		l.Metadata = maps.Clone(*u.Metadata)
	}
	if u.Members != nil {
		l.Members = dedupMembers(*u.Members)
	}
	if u.IdleTimeoutSeconds != nil {
		l.IdleTimeoutSeconds = *u.IdleTimeoutSeconds
	}
	if u.LinkedChannel != nil {
		l.LinkedChannel = *u.LinkedChannel
	}
	l.touch(s.clock.Now())

	out := l.clone()
	evt := s.lobbyEventLocked(EventLobbyUpdate, l)
	s.mu.Unlock()

	s.dispatch(evt)
	return out, true
}

// AddOrReplaceMember replaces the member with the same ID in place, or appends it.
// Returns false if the lobby does not exist.
func (s *Store) AddOrReplaceMember(lobbyID string, member models.LobbyMember) bool {
	ok, _ := s.AddOrReplaceMemberCapped(lobbyID, member, 0)
	return ok
}

// AddOrReplaceMemberCapped is AddOrReplaceMember with a roster limit checked under
// the lock: a new member is refused (full == true) once the lobby holds limit
// members. Replacing an existing member is always allowed. limit <= 0 means no limit.
func (s *Store) AddOrReplaceMemberCapped(lobbyID string, member models.LobbyMember, limit int) (ok, full bool) {
	s.mu.Lock()
	l, ok := s.lobbies[lobbyID]
	if !ok {
		s.mu.Unlock()
		return false, false
	}

	member = cloneMember(member)
	if i := l.memberIndex(member.ID); i >= 0 {
		l.Members[i] = member
	} else {
		if limit > 0 && len(l.Members) >= limit {
			s.mu.Unlock()
			return true, true
		}
		l.Members = append(l.Members, member)
	}
	l.touch(s.clock.Now())

	evt := s.memberEventLocked(EventLobbyMemberAdd, l, member)
	s.mu.Unlock()

	s.dispatch(evt)
	return true, false
}

// RemoveMember drops a member from the roster. Returns false if the lobby or the
// member does not exist. Removing the last member deletes the lobby.
func (s *Store) RemoveMember(lobbyID, memberID string) bool {
	s.mu.Lock()
	l, ok := s.lobbies[lobbyID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	i := l.memberIndex(memberID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}

	removed := l.Members[i]
	l.Members = append(l.Members[:i], l.Members[i+1:]...)
	l.touch(s.clock.Now())
	events := []Event{s.memberEventLocked(EventLobbyMemberRemove, l, removed)}

	if len(l.Members) == 0 {
		events = append(events, s.deleteLocked(l))
	}
	s.mu.Unlock()

	s.dispatch(events...)
	return true
}

// Delete removes the lobby and emits LOBBY_DELETE. Returns false, without emitting
// anything, if no lobby was removed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	l, ok := s.lobbies[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	evt := s.deleteLocked(l)
	s.mu.Unlock()

	s.logger.WithField("lobby_id", id).Debug("LobbyStore: deleted lobby")
	s.dispatch(evt)
	return true
}

// Sweep evicts every lobby idle for longer than its own timeout. It is driven by
// Start but may be called directly.
func (s *Store) Sweep() int {
	s.mu.Lock()
	now := s.clock.Now()
	var events []Event
	for _, l := range s.lobbies {
		if l.idleFor(now) <= l.idleTimeout() {
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"lobby_id": l.ID,
			"idle":     l.idleFor(now),
			"timeout":  l.idleTimeout(),
		}).Info("LobbyStore: evicting idle lobby")
		events = append(events, s.deleteLocked(l))
	}
	s.mu.Unlock()

	s.dispatch(events...)
	return len(events)
}

// deleteLocked removes l from the map and returns its deletion event. Caller holds mu.
func (s *Store) deleteLocked(l *Lobby) Event {
	delete(s.lobbies, l.ID)
	s.seq++
	return Event{
		Type:          EventLobbyDelete,
		Seq:           s.seq,
		LobbyID:       l.ID,
		ApplicationID: l.ApplicationID,
		Data:          models.LobbyDeleteEvent{LobbyID: l.ID},
	}
}

// dispatch hands events to the notifier in order. A panicking notifier is
// recovered per event so the remaining events still go out.
//
// It runs after mu is released so a notifier may call back into the store.
// Events from concurrent operations can therefore arrive out of order; Seq
// restores it.
func (s *Store) dispatch(events ...Event) {
	for _, evt := range events {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.WithFields(logrus.Fields{
						"event":    evt.Type,
						"lobby_id": evt.LobbyID,
						"panic":    fmt.Sprint(r),
					}).Error("LobbyStore: notifier panicked")
				}
			}()
			s.notifier.Notify(evt)
		}()
	}
}

func (s *Store) lobbyEventLocked(typ string, l *Lobby) Event {
	s.seq++
	return Event{
		Type:          typ,
		Seq:           s.seq,
		LobbyID:       l.ID,
		ApplicationID: l.ApplicationID,
		Data:          l.clone().Response(),
	}
}

func (s *Store) memberEventLocked(typ string, l *Lobby, m models.LobbyMember) Event {
	s.seq++
	return Event{
		Type:          typ,
		Seq:           s.seq,
		LobbyID:       l.ID,
		ApplicationID: l.ApplicationID,
		UserID:        m.ID,
		Data:          models.LobbyMemberEvent{LobbyID: l.ID, Member: cloneMember(m)},
	}
}

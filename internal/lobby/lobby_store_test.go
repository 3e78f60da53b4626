// internal/lobby/lobby_store_test.go
package lobby

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock is a Clock that only moves when the test advances it.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder captures every event the store emits.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) count(typ string) int {
	n := 0
	for _, t := range r.types() {
		if t == typ {
			n++
		}
	}
	return n
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestStore(t *testing.T) (*Store, *manualClock, *recorder) {
	t.Helper()
	clock := newManualClock()
	rec := &recorder{}
	s := NewStore(Options{Clock: clock, Notifier: rec, Logger: quietLogger()})
	t.Cleanup(s.Shutdown)
	return s, clock, rec
}

func seed(id string, timeout int, members ...models.LobbyMember) Lobby {
	return Lobby{
		ID:                 id,
		ApplicationID:      "app-1",
		Members:            members,
		IdleTimeoutSeconds: timeout,
	}
}

func TestCreateThenGet(t *testing.T) {
	s, clock, rec := newTestStore(t)

	members := []models.LobbyMember{{ID: "m1", Flags: 1}, {ID: "m2"}}
	created := s.Create(seed("L1", 300, members...))

	got, ok := s.Get("L1")
	require.True(t, ok)
	assert.Equal(t, members, got.Members)
	assert.Equal(t, clock.Now(), got.CreatedAt)
	assert.Equal(t, got.CreatedAt, got.LastActivity)
	assert.Equal(t, created, got)
	assert.Equal(t, []string{EventLobbyCreate}, rec.types())

	resp, ok := rec.events[0].Data.(models.LobbyResponse)
	require.True(t, ok)
	assert.Equal(t, "L1", resp.ID)
	assert.Equal(t, "app-1", resp.ApplicationID)
	assert.Nil(t, resp.LinkedChannel)
}

func TestCreateOverwritesDuplicateID(t *testing.T) {
	s, _, _ := newTestStore(t)

	s.Create(seed("L1", 300, models.LobbyMember{ID: "a"}))
	s.Create(seed("L1", 60, models.LobbyMember{ID: "b"}))

	got, ok := s.Get("L1")
	require.True(t, ok)
	assert.Equal(t, 60, got.IdleTimeoutSeconds)
	require.Len(t, got.Members, 1)
	assert.Equal(t, "b", got.Members[0].ID)
	assert.Equal(t, 1, s.Len())
}

func TestCreateDedupsSeedMembers(t *testing.T) {
	s, _, _ := newTestStore(t)

	got := s.Create(seed("L1", 300,
		models.LobbyMember{ID: "a", Flags: 0},
		models.LobbyMember{ID: "b"},
		models.LobbyMember{ID: "a", Flags: 1},
	))
	require.Len(t, got.Members, 2)
	assert.Equal(t, "a", got.Members[0].ID)
	assert.Equal(t, 1, got.Members[0].Flags)
}

func TestGetReturnsCopy(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.Create(Lobby{
		ID:                 "L1",
		Metadata:           map[string]string{"k": "v"},
		Members:            []models.LobbyMember{{ID: "m1", Metadata: map[string]string{"x": "y"}}},
		IdleTimeoutSeconds: 300,
	})

	got, _ := s.Get("L1")
	got.Metadata["k"] = "changed"
	got.Members[0].ID = "changed"
	got.Members[0].Metadata["x"] = "changed"

	again, _ := s.Get("L1")
	assert.Equal(t, "v", again.Metadata["k"])
	assert.Equal(t, "m1", again.Members[0].ID)
	assert.Equal(t, "y", again.Members[0].Metadata["x"])
}

func TestGetDoesNotTouch(t *testing.T) {
	s, clock, _ := newTestStore(t)
	s.Create(seed("L1", 300, models.LobbyMember{ID: "m1"}))

	clock.Advance(10 * time.Second)
	got, _ := s.Get("L1")
	assert.Equal(t, got.CreatedAt, got.LastActivity)

	s.Touch("L1")
	got, _ = s.Get("L1")
	assert.Equal(t, clock.Now(), got.LastActivity)

	// absent ids are ignored
	s.Touch("missing")
}

func TestUpdateEmptyOnlyRefreshesActivity(t *testing.T) {
	s, clock, rec := newTestStore(t)
	before := s.Create(Lobby{
		ID:                 "L1",
		ApplicationID:      "app-1",
		Metadata:           map[string]string{"k": "v"},
		Members:            []models.LobbyMember{{ID: "m1"}},
		LinkedChannel:      "c1",
		IdleTimeoutSeconds: 300,
	})

	clock.Advance(5 * time.Second)
	after, ok := s.Update("L1", Update{})
	require.True(t, ok)

	assert.Equal(t, before.Metadata, after.Metadata)
	assert.Equal(t, before.Members, after.Members)
	assert.Equal(t, before.LinkedChannel, after.LinkedChannel)
	assert.Equal(t, before.IdleTimeoutSeconds, after.IdleTimeoutSeconds)
	assert.Equal(t, clock.Now(), after.LastActivity)
	assert.Equal(t, []string{EventLobbyCreate, EventLobbyUpdate}, rec.types())
}

func TestUpdateMergesProvidedFields(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.Create(Lobby{
		ID:                 "L1",
		Metadata:           map[string]string{"k": "v"},
		Members:            []models.LobbyMember{{ID: "m1"}},
		LinkedChannel:      "c1",
		IdleTimeoutSeconds: 300,
	})

	timeout := 60
	unlink := ""
	got, ok := s.Update("L1", Update{IdleTimeoutSeconds: &timeout, LinkedChannel: &unlink})
	require.True(t, ok)
	assert.Equal(t, 60, got.IdleTimeoutSeconds)
	assert.Empty(t, got.LinkedChannel)
	assert.Equal(t, map[string]string{"k": "v"}, got.Metadata)
	assert.Nil(t, got.Response().LinkedChannel)

	members := []models.LobbyMember{{ID: "m2"}, {ID: "m3"}}
	meta := map[string]string{"new": "1"}
	got, _ = s.Update("L1", Update{Members: &members, Metadata: &meta})
	assert.Equal(t, members, got.Members)
	assert.Equal(t, meta, got.Metadata)
}

func TestUpdateMissing(t *testing.T) {
	s, _, rec := newTestStore(t)
	_, ok := s.Update("missing", Update{})
	assert.False(t, ok)
	assert.Empty(t, rec.types())
}

func TestAddOrReplaceMemberIsIdempotent(t *testing.T) {
	s, _, rec := newTestStore(t)
	s.Create(seed("L1", 300, models.LobbyMember{ID: "m1"}))

	m := models.LobbyMember{ID: "m2", Flags: 1, Metadata: map[string]string{"a": "b"}}
	require.True(t, s.AddOrReplaceMember("L1", m))
	require.True(t, s.AddOrReplaceMember("L1", m))

	got, _ := s.Get("L1")
	assert.Len(t, got.Members, 2)
	assert.Equal(t, 2, rec.count(EventLobbyMemberAdd))

	evt := rec.events[len(rec.events)-1]
	assert.Equal(t, "m2", evt.UserID)
	assert.Equal(t, models.LobbyMemberEvent{LobbyID: "L1", Member: m}, evt.Data)
}

func TestAddOrReplaceMemberKeepsPosition(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.Create(seed("L1", 300,
		models.LobbyMember{ID: "a"},
		models.LobbyMember{ID: "b"},
		models.LobbyMember{ID: "c"},
	))

	require.True(t, s.AddOrReplaceMember("L1", models.LobbyMember{ID: "b", Flags: 1}))

	got, _ := s.Get("L1")
	require.Len(t, got.Members, 3)
	assert.Equal(t, "b", got.Members[1].ID)
	assert.Equal(t, 1, got.Members[1].Flags)
}

func TestAddOrReplaceMemberMissingLobby(t *testing.T) {
	s, _, rec := newTestStore(t)
	assert.False(t, s.AddOrReplaceMember("missing", models.LobbyMember{ID: "m"}))
	assert.Empty(t, rec.types())
}

func TestRemoveMember(t *testing.T) {
	s, _, rec := newTestStore(t)
	s.Create(seed("L1", 300, models.LobbyMember{ID: "m1"}, models.LobbyMember{ID: "m2"}))

	assert.False(t, s.RemoveMember("L1", "nobody"))
	assert.False(t, s.RemoveMember("missing", "m1"))

	require.True(t, s.RemoveMember("L1", "m1"))
	got, ok := s.Get("L1")
	require.True(t, ok)
	assert.Equal(t, []models.LobbyMember{{ID: "m2"}}, got.Members)
	assert.Equal(t, []string{EventLobbyCreate, EventLobbyMemberRemove}, rec.types())

	evt := rec.events[1]
	assert.Equal(t, "L1", evt.LobbyID)
	assert.Equal(t, "app-1", evt.ApplicationID)
	assert.Equal(t, "m1", evt.UserID)
	assert.Equal(t, models.LobbyMemberEvent{LobbyID: "L1", Member: models.LobbyMember{ID: "m1"}}, evt.Data)
}

func TestAddOrReplaceMemberCapped(t *testing.T) {
	s, _, rec := newTestStore(t)
	s.Create(seed("L1", 300, models.LobbyMember{ID: "a"}, models.LobbyMember{ID: "b"}))

	ok, full := s.AddOrReplaceMemberCapped("L1", models.LobbyMember{ID: "c"}, 2)
	assert.True(t, ok)
	assert.True(t, full)

	// replacing is fine at the limit
	ok, full = s.AddOrReplaceMemberCapped("L1", models.LobbyMember{ID: "b", Flags: 1}, 2)
	assert.True(t, ok)
	assert.False(t, full)

	ok, full = s.AddOrReplaceMemberCapped("missing", models.LobbyMember{ID: "c"}, 2)
	assert.False(t, ok)
	assert.False(t, full)

	got, _ := s.Get("L1")
	assert.Equal(t, []models.LobbyMember{{ID: "a"}, {ID: "b", Flags: 1}}, got.Members)
	assert.Equal(t, []string{EventLobbyCreate, EventLobbyMemberAdd}, rec.types())
}

func TestAddOrReplaceMemberCappedConcurrent(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.Create(seed("L1", 300, models.LobbyMember{ID: "host"}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AddOrReplaceMemberCapped("L1", models.LobbyMember{ID: fmt.Sprintf("u%d", i)}, MaxMembers)
		}(i)
	}
	wg.Wait()

	got, _ := s.Get("L1")
	assert.Len(t, got.Members, MaxMembers)
}

func TestEventsCarryIncreasingSequence(t *testing.T) {
	s, _, rec := newTestStore(t)
	s.Create(seed("L1", 300, models.LobbyMember{ID: "m1"}))
	s.Update("L1", Update{})
	s.AddOrReplaceMember("L1", models.LobbyMember{ID: "m2"})
	s.RemoveMember("L1", "m2")
	s.RemoveMember("L1", "m1")

	require.Len(t, rec.events, 6)
	for i, evt := range rec.events {
		assert.EqualValues(t, i+1, evt.Seq, evt.Type)
	}
}

func TestConcurrentUpdatesSequenceMatchesFinalState(t *testing.T) {
	s, _, rec := newTestStore(t)
	s.Create(seed("L1", 300, models.LobbyMember{ID: "m1"}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Update("L1", Update{Metadata: &map[string]string{"n": fmt.Sprint(i)}})
		}(i)
	}
	wg.Wait()

	// whatever the delivery order, the highest sequence carries the stored state
	rec.mu.Lock()
	var last Event
	for _, evt := range rec.events {
		if evt.Seq > last.Seq {
			last = evt
		}
	}
	rec.mu.Unlock()

	got, _ := s.Get("L1")
	assert.Equal(t, got.Response(), last.Data)
}

func TestRemoveLastMemberDeletesLobby(t *testing.T) {
	s, _, rec := newTestStore(t)
	s.Create(seed("L1", 300, models.LobbyMember{ID: "m1"}))

	require.True(t, s.RemoveMember("L1", "m1"))

	_, ok := s.Get("L1")
	assert.False(t, ok)
	assert.Equal(t, 1, rec.count(EventLobbyDelete))
	assert.Equal(t, []string{EventLobbyCreate, EventLobbyMemberRemove, EventLobbyDelete}, rec.types())
}

func TestDelete(t *testing.T) {
	s, _, rec := newTestStore(t)
	s.Create(seed("L1", 300, models.LobbyMember{ID: "m1"}))

	assert.False(t, s.Delete("missing"))
	assert.Equal(t, []string{EventLobbyCreate}, rec.types())

	assert.True(t, s.Delete("L1"))
	assert.False(t, s.Delete("L1"))
	assert.Equal(t, 1, rec.count(EventLobbyDelete))

	evt := rec.events[len(rec.events)-1]
	assert.Equal(t, models.LobbyDeleteEvent{LobbyID: "L1"}, evt.Data)
	assert.Equal(t, "app-1", evt.ApplicationID)
}

func TestSweepEvictsIdleLobbies(t *testing.T) {
	s, clock, rec := newTestStore(t)
	s.Create(seed("stale", 5, models.LobbyMember{ID: "m"}))

	clock.Advance(2 * time.Second)
	s.Create(seed("fresh", 5, models.LobbyMember{ID: "m"}))

	// stale is now 6s idle, fresh 4s
	clock.Advance(4 * time.Second)
	assert.Equal(t, 1, s.Sweep())

	_, ok := s.Get("stale")
	assert.False(t, ok)
	_, ok = s.Get("fresh")
	assert.True(t, ok)
	assert.Equal(t, 1, rec.count(EventLobbyDelete))
}

func TestSweepKeepsLobbyAtExactTimeout(t *testing.T) {
	s, clock, _ := newTestStore(t)
	s.Create(seed("L1", 5, models.LobbyMember{ID: "m"}))

	clock.Advance(5 * time.Second)
	assert.Equal(t, 0, s.Sweep())

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, s.Sweep())
}

func TestActivityPostponesEviction(t *testing.T) {
	s, clock, _ := newTestStore(t)
	s.Create(seed("L1", 5, models.LobbyMember{ID: "m1"}))

	clock.Advance(4 * time.Second)
	require.True(t, s.AddOrReplaceMember("L1", models.LobbyMember{ID: "m2"}))
	clock.Advance(4 * time.Second)

	assert.Equal(t, 0, s.Sweep())
}

func TestLastActivityNeverMovesBackwards(t *testing.T) {
	s, clock, _ := newTestStore(t)
	s.Create(seed("L1", 300, models.LobbyMember{ID: "m1"}))
	clock.Advance(10 * time.Second)
	s.Touch("L1")
	latest := clock.Now()

	clock.Advance(-5 * time.Second)
	s.Touch("L1")

	got, _ := s.Get("L1")
	assert.Equal(t, latest, got.LastActivity)
}

func TestSweepSurvivesPanickingNotifier(t *testing.T) {
	clock := newManualClock()
	var mu sync.Mutex
	var deleted []string
	notifier := NotifierFunc(func(evt Event) {
		if evt.Type != EventLobbyDelete {
			return
		}
		mu.Lock()
		deleted = append(deleted, evt.LobbyID)
		mu.Unlock()
		panic("sink exploded")
	})
	s := NewStore(Options{Clock: clock, Notifier: notifier, Logger: quietLogger()})
	defer s.Shutdown()

	s.Create(seed("a", 5, models.LobbyMember{ID: "m"}))
	s.Create(seed("b", 5, models.LobbyMember{ID: "m"}))
	clock.Advance(time.Minute)

	assert.Equal(t, 2, s.Sweep())
	assert.Equal(t, 0, s.Len())
	assert.ElementsMatch(t, []string{"a", "b"}, deleted)
}

func TestNotifierMayCallBackIntoStore(t *testing.T) {
	var s *Store
	var seen []int
	s = NewStore(Options{
		Clock:  newManualClock(),
		Logger: quietLogger(),
		Notifier: NotifierFunc(func(evt Event) {
			seen = append(seen, s.Len())
		}),
	})
	defer s.Shutdown()

	s.Create(seed("L1", 300, models.LobbyMember{ID: "m"}))
	s.RemoveMember("L1", "m")
	assert.Equal(t, []int{1, 0, 0}, seen)
}

func TestList(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.Create(Lobby{ID: "a", ApplicationID: "app-1", IdleTimeoutSeconds: 300})
	s.Create(Lobby{ID: "b", ApplicationID: "app-2", IdleTimeoutSeconds: 300})
	s.Create(Lobby{ID: "c", ApplicationID: "app-1", IdleTimeoutSeconds: 300})

	ids := func(ls []Lobby) []string {
		out := make([]string, len(ls))
		for i, l := range ls {
			out[i] = l.ID
		}
		return out
	}
	assert.ElementsMatch(t, []string{"a", "c"}, ids(s.List("app-1")))
	assert.Len(t, s.List(""), 3)
}

func TestShutdownClearsWithoutEvents(t *testing.T) {
	s, _, rec := newTestStore(t)
	s.Start(context.Background())
	s.Create(seed("L1", 300, models.LobbyMember{ID: "m"}))
	s.Create(seed("L2", 300, models.LobbyMember{ID: "m"}))

	s.Shutdown()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, rec.count(EventLobbyDelete))

	// second call is a no-op
	s.Shutdown()
}

func TestStartRunsSweepOnInterval(t *testing.T) {
	clock := newManualClock()
	rec := &recorder{}
	s := NewStore(Options{
		Clock:         clock,
		Notifier:      rec,
		Logger:        quietLogger(),
		SweepInterval: 10 * time.Millisecond,
	})
	defer s.Shutdown()

	s.Create(seed("L1", 5, models.LobbyMember{ID: "m"}))
	clock.Advance(time.Minute)
	s.Start(context.Background())

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.count(EventLobbyDelete))
}

// TestRosterScenario walks a lobby from creation to implicit deletion.
func TestRosterScenario(t *testing.T) {
	s, _, rec := newTestStore(t)
	s.Create(seed("L1", 300))

	require.True(t, s.AddOrReplaceMember("L1", models.LobbyMember{ID: "M1", Flags: 1}))
	require.True(t, s.AddOrReplaceMember("L1", models.LobbyMember{ID: "M2", Flags: 0}))
	got, _ := s.Get("L1")
	assert.Len(t, got.Members, 2)

	require.True(t, s.RemoveMember("L1", "M1"))
	got, _ = s.Get("L1")
	assert.Equal(t, []models.LobbyMember{{ID: "M2"}}, got.Members)

	require.True(t, s.RemoveMember("L1", "M2"))
	_, ok := s.Get("L1")
	assert.False(t, ok)
	assert.Equal(t, 1, rec.count(EventLobbyDelete))
}

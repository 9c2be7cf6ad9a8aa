package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/akkhan00/m5Chat/internal/domain"
	"github.com/akkhan00/m5Chat/internal/store"
)

// --- test doubles ---

type fakeConn struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (c *fakeConn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *fakeConn) ofType(t string) []Event {
	var out []Event
	for _, ev := range c.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// failingStore lets single operations be forced to fail.
type failingStore struct {
	store.Store
	insertErr error
	reapErr   error
}

func (s *failingStore) InsertMessage(ctx context.Context, m *domain.Message) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.Store.InsertMessage(ctx, m)
}

func (s *failingStore) ReapExpired(ctx context.Context, now time.Time) ([]store.Reaped, error) {
	if s.reapErr != nil {
		return nil, s.reapErr
	}
	return s.Store.ReapExpired(ctx, now)
}

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestManager() (*Manager, *Registry, *store.Memory, *fakeClock) {
	st := store.NewMemory()
	reg := NewRegistry()
	clk := newFakeClock(testBase)
	return NewManager(st, reg, clk.Now), reg, st, clk
}

func join(t *testing.T, m *Manager, username, room string) (*Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	s := NewSession(conn)
	if err := m.Join(context.Background(), s, username, room); err != nil {
		t.Fatalf("join %s/%s: %v", username, room, err)
	}
	return s, conn
}

// --- join ---

func TestJoin_DeliversHistoryThenPresence(t *testing.T) {
	m, _, _, _ := newTestManager()

	_, aliceConn := join(t, m, "alice", "lobby")

	evs := aliceConn.all()
	if len(evs) != 2 {
		t.Fatalf("expected history + user_joined, got %d events: %+v", len(evs), evs)
	}
	if evs[0].Type != EventRoomHistory {
		t.Fatalf("first event = %s, want %s", evs[0].Type, EventRoomHistory)
	}
	hist := evs[0].Payload.(HistoryPayload)
	if len(hist.Messages) != 0 {
		t.Fatalf("expected empty history, got %d messages", len(hist.Messages))
	}
	if evs[1].Type != EventUserJoined {
		t.Fatalf("second event = %s, want %s", evs[1].Type, EventUserJoined)
	}
	pres := evs[1].Payload.(PresencePayload)
	if pres.Username != "alice" || len(pres.Members) != 1 || pres.Members[0] != "alice" {
		t.Fatalf("presence payload wrong: %+v", pres)
	}
}

func TestJoin_HistoryGoesOnlyToJoiner(t *testing.T) {
	m, _, _, _ := newTestManager()

	alice, aliceConn := join(t, m, "alice", "lobby")
	if err := m.Send(context.Background(), alice, "hi", domain.KindText); err != nil {
		t.Fatalf("send: %v", err)
	}

	_, bobConn := join(t, m, "bob", "lobby")

	bobHist := bobConn.ofType(EventRoomHistory)
	if len(bobHist) != 1 {
		t.Fatalf("bob should get exactly one history, got %d", len(bobHist))
	}
	msgs := bobHist[0].Payload.(HistoryPayload).Messages
	if len(msgs) != 1 || msgs[0].Content != "hi" || msgs[0].Username != "alice" {
		t.Fatalf("bob's history wrong: %+v", msgs)
	}

	// alice must not receive a second history, only bob's user_joined
	if n := len(aliceConn.ofType(EventRoomHistory)); n != 1 {
		t.Fatalf("alice got %d history events, want only her own", n)
	}
	joined := aliceConn.ofType(EventUserJoined)
	last := joined[len(joined)-1].Payload.(PresencePayload)
	if last.Username != "bob" {
		t.Fatalf("alice should see bob join, got %+v", last)
	}
	if len(last.Members) != 2 {
		t.Fatalf("member list should have both sessions: %+v", last.Members)
	}
}

func TestJoin_Validation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		room     string
	}{
		{name: "empty username", username: "", room: "lobby"},
		{name: "long username", username: strings.Repeat("a", 21), room: "lobby"},
		{name: "bad username charset", username: "al ice", room: "lobby"},
		{name: "empty room", username: "alice", room: ""},
		{name: "long room", username: "alice", room: strings.Repeat("r", 31)},
		{name: "bad room charset", username: "alice", room: "lob by"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, reg, _, _ := newTestManager()
			conn := &fakeConn{}
			s := NewSession(conn)

			err := m.Join(context.Background(), s, tt.username, tt.room)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if len(conn.all()) != 0 {
				t.Fatalf("no events expected on failed join, got %+v", conn.all())
			}
			if tt.room != "" && len(reg.Members(tt.room)) != 0 {
				t.Fatalf("membership must not change on failed join")
			}
		})
	}
}

func TestJoin_WhileJoinedIsInvalidState(t *testing.T) {
	m, reg, _, _ := newTestManager()

	alice, _ := join(t, m, "alice", "lobby")

	err := m.Join(context.Background(), alice, "alice", "den")
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if got := reg.Members("lobby"); len(got) != 1 {
		t.Fatalf("lobby membership changed: %v", got)
	}
	if got := reg.Members("den"); len(got) != 0 {
		t.Fatalf("den must not be created: %v", got)
	}
}

func TestConcurrentJoins_NoneLost(t *testing.T) {
	m, reg, _, _ := newTestManager()

	const n = 50
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := NewSession(&fakeConn{})
			errCh <- m.Join(context.Background(), s, fmt.Sprintf("user%02d", i), "general")
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent join failed: %v", err)
		}
	}

	if got := len(reg.Members("general")); got != n {
		t.Fatalf("membership size = %d, want %d", got, n)
	}
}

// --- send ---

func TestSend_BroadcastsToAllIncludingSender(t *testing.T) {
	m, _, st, clk := newTestManager()

	alice, aliceConn := join(t, m, "alice", "lobby")
	_, bobConn := join(t, m, "bob", "lobby")

	if err := m.Send(context.Background(), alice, "hello", domain.KindText); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, tc := range []struct {
		who  string
		conn *fakeConn
	}{{"alice", aliceConn}, {"bob", bobConn}} {
		got := tc.conn.ofType(EventNewMessage)
		if len(got) != 1 {
			t.Fatalf("%s got %d new_message events, want 1", tc.who, len(got))
		}
		msg := got[0].Payload.(NewMessagePayload).Message
		if msg.Content != "hello" || msg.Username != "alice" || msg.ID == "" {
			t.Fatalf("%s received wrong message: %+v", tc.who, msg)
		}
		if !msg.ExpiresAt.Equal(msg.CreatedAt.Add(domain.MessageTTL)) {
			t.Fatalf("broadcast message carries wrong expiry: %+v", msg)
		}
	}

	live, err := st.ListLive(context.Background(), "lobby", clk.Now())
	if err != nil {
		t.Fatalf("list live: %v", err)
	}
	if len(live) != 1 || live[0].Content != "hello" {
		t.Fatalf("message not persisted: %+v", live)
	}
}

func TestSend_BeforeJoinIsInvalidState(t *testing.T) {
	m, _, st, clk := newTestManager()
	s := NewSession(&fakeConn{})

	err := m.Send(context.Background(), s, "hi", domain.KindText)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	rooms, _ := st.ListActiveRooms(context.Background(), clk.Now())
	if len(rooms) != 0 {
		t.Fatalf("nothing should be stored: %+v", rooms)
	}
}

func TestSend_OverlongContentRejectedBeforeStore(t *testing.T) {
	m, _, st, clk := newTestManager()
	alice, aliceConn := join(t, m, "alice", "lobby")

	err := m.Send(context.Background(), alice, strings.Repeat("x", 501), domain.KindText)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	live, _ := st.ListLive(context.Background(), "lobby", clk.Now())
	if len(live) != 0 {
		t.Fatalf("overlong message must not be inserted: %+v", live)
	}
	if n := len(aliceConn.ofType(EventNewMessage)); n != 0 {
		t.Fatalf("overlong message must not be broadcast, got %d", n)
	}
}

func TestSend_StoreFailureDoesNotBroadcast(t *testing.T) {
	st := &failingStore{Store: store.NewMemory(), insertErr: errors.New("disk full")}
	reg := NewRegistry()
	clk := newFakeClock(testBase)
	m := NewManager(st, reg, clk.Now)

	alice, aliceConn := join(t, m, "alice", "lobby")
	_, bobConn := join(t, m, "bob", "lobby")

	err := m.Send(context.Background(), alice, "hello", domain.KindText)
	if err == nil || errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected a storage error, got %v", err)
	}
	if n := len(aliceConn.ofType(EventNewMessage)) + len(bobConn.ofType(EventNewMessage)); n != 0 {
		t.Fatalf("failed send must not broadcast, got %d events", n)
	}
}

func TestSend_DefaultsToTextKind(t *testing.T) {
	m, _, _, _ := newTestManager()
	alice, aliceConn := join(t, m, "alice", "lobby")

	if err := m.Send(context.Background(), alice, "hi", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := aliceConn.ofType(EventNewMessage)[0].Payload.(NewMessagePayload).Message
	if msg.Kind != string(domain.KindText) {
		t.Fatalf("kind = %q, want text", msg.Kind)
	}
}

// --- ordering ---

func TestOrdering_SameSenderObservedInOrder(t *testing.T) {
	m, _, _, _ := newTestManager()

	alice, _ := join(t, m, "alice", "lobby")
	_, bobConn := join(t, m, "bob", "lobby")
	_, carolConn := join(t, m, "carol", "lobby")

	for i := 0; i < 10; i++ {
		if err := m.Send(context.Background(), alice, fmt.Sprintf("m%d", i), domain.KindText); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	for _, conn := range []*fakeConn{bobConn, carolConn} {
		got := conn.ofType(EventNewMessage)
		if len(got) != 10 {
			t.Fatalf("expected 10 messages, got %d", len(got))
		}
		for i, ev := range got {
			want := fmt.Sprintf("m%d", i)
			if c := ev.Payload.(NewMessagePayload).Message.Content; c != want {
				t.Fatalf("position %d: got %q, want %q", i, c, want)
			}
		}
	}
}

func TestOrdering_ConcurrentSendersSingleTotalOrder(t *testing.T) {
	m, _, _, _ := newTestManager()

	alice, aliceConn := join(t, m, "alice", "lobby")
	bob, bobConn := join(t, m, "bob", "lobby")
	_, carolConn := join(t, m, "carol", "lobby")

	const perSender = 25
	var wg sync.WaitGroup
	for _, s := range []*Session{alice, bob} {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				if err := m.Send(context.Background(), s, fmt.Sprintf("%s-%d", s.Username(), i), domain.KindText); err != nil {
					t.Errorf("send: %v", err)
					return
				}
			}
		}(s)
	}
	wg.Wait()

	sequence := func(conn *fakeConn) []string {
		var ids []string
		for _, ev := range conn.ofType(EventNewMessage) {
			ids = append(ids, ev.Payload.(NewMessagePayload).Message.ID)
		}
		return ids
	}

	ref := sequence(aliceConn)
	if len(ref) != 2*perSender {
		t.Fatalf("alice saw %d messages, want %d", len(ref), 2*perSender)
	}
	for _, conn := range []*fakeConn{bobConn, carolConn} {
		got := sequence(conn)
		if len(got) != len(ref) {
			t.Fatalf("recipient saw %d messages, want %d", len(got), len(ref))
		}
		for i := range ref {
			if got[i] != ref[i] {
				t.Fatalf("order diverges at %d: %s vs %s", i, got[i], ref[i])
			}
		}
	}
}

// --- leave / disconnect ---

func TestLeave_BeforeJoinIsInvalidState(t *testing.T) {
	m, _, _, _ := newTestManager()
	s := NewSession(&fakeConn{})

	if err := m.Leave(s); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestLeave_NotifiesRemainingMembers(t *testing.T) {
	m, reg, _, _ := newTestManager()

	alice, aliceConn := join(t, m, "alice", "lobby")
	_, bobConn := join(t, m, "bob", "lobby")

	if err := m.Leave(alice); err != nil {
		t.Fatalf("leave: %v", err)
	}

	left := bobConn.ofType(EventUserLeft)
	if len(left) != 1 {
		t.Fatalf("bob got %d user_left events, want 1", len(left))
	}
	pres := left[0].Payload.(PresencePayload)
	if pres.Username != "alice" || len(pres.Members) != 1 || pres.Members[0] != "bob" {
		t.Fatalf("user_left payload wrong: %+v", pres)
	}
	// the leaver is already removed when the broadcast goes out
	if n := len(aliceConn.ofType(EventUserLeft)); n != 0 {
		t.Fatalf("alice should not receive her own user_left, got %d", n)
	}
	if got := reg.Members("lobby"); len(got) != 1 || got[0] != "bob" {
		t.Fatalf("membersOf after leave = %v", got)
	}

	// session is reusable: back to Unbound
	if err := m.Join(context.Background(), alice, "alice", "den"); err != nil {
		t.Fatalf("rejoin after leave: %v", err)
	}
}

func TestDisconnect_ActsAsLeaveExactlyOnce(t *testing.T) {
	m, reg, _, _ := newTestManager()

	alice, _ := join(t, m, "alice", "lobby")
	_, bobConn := join(t, m, "bob", "lobby")

	m.Disconnect(alice)
	m.Disconnect(alice) // repeated loss notifications must not double-broadcast

	left := bobConn.ofType(EventUserLeft)
	if len(left) != 1 {
		t.Fatalf("expected exactly one user_left, got %d", len(left))
	}
	if got := reg.Members("lobby"); len(got) != 1 || got[0] != "bob" {
		t.Fatalf("disconnected session still counted: %v", got)
	}
}

func TestDisconnect_WhileUnboundIsNoOp(t *testing.T) {
	m, _, _, _ := newTestManager()
	conn := &fakeConn{}
	s := NewSession(conn)

	m.Disconnect(s)

	if len(conn.all()) != 0 {
		t.Fatalf("no events expected, got %+v", conn.all())
	}
}

func TestDisconnect_LastMemberPrunesRoom(t *testing.T) {
	m, reg, _, _ := newTestManager()

	alice, _ := join(t, m, "alice", "lobby")
	m.Disconnect(alice)

	if got := reg.Members("lobby"); len(got) != 0 {
		t.Fatalf("expected empty membership, got %v", got)
	}
	// pruning is registry-internal; a new join must work from scratch
	_, conn := join(t, m, "carol", "lobby")
	pres := conn.ofType(EventUserJoined)[0].Payload.(PresencePayload)
	if len(pres.Members) != 1 || pres.Members[0] != "carol" {
		t.Fatalf("stale membership after prune: %+v", pres)
	}
}

// --- full lifecycle ---

func TestScenario_LobbyLifecycle(t *testing.T) {
	st := store.NewMemory()
	reg := NewRegistry()
	clk := newFakeClock(testBase)
	m := NewManager(st, reg, clk.Now)
	reaper := NewReaper(st, reg, time.Minute, clk.Now)
	ctx := context.Background()

	// alice joins an empty lobby and sees empty history
	_, aliceConn := join(t, m, "alice", "lobby")
	hist := aliceConn.ofType(EventRoomHistory)[0].Payload.(HistoryPayload)
	if len(hist.Messages) != 0 {
		t.Fatalf("expected empty history, got %+v", hist.Messages)
	}

	// bob joins; alice sees user_joined{bob}
	bob, bobConn := join(t, m, "bob", "lobby")
	joined := aliceConn.ofType(EventUserJoined)
	if got := joined[len(joined)-1].Payload.(PresencePayload); got.Username != "bob" {
		t.Fatalf("alice should see bob join, got %+v", got)
	}

	// bob sends "hi"; both receive it with bob as author
	if err := m.Send(ctx, bob, "hi", domain.KindText); err != nil {
		t.Fatalf("send: %v", err)
	}
	for _, conn := range []*fakeConn{aliceConn, bobConn} {
		got := conn.ofType(EventNewMessage)
		if len(got) != 1 {
			t.Fatalf("expected 1 new_message, got %d", len(got))
		}
		msg := got[0].Payload.(NewMessagePayload).Message
		if msg.Content != "hi" || msg.Username != "bob" {
			t.Fatalf("wrong message: %+v", msg)
		}
	}

	// 301 seconds later the message is no longer live, reaped or not
	clk.Advance(301 * time.Second)
	live, err := st.ListLive(ctx, "lobby", clk.Now())
	if err != nil {
		t.Fatalf("list live: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("message must be expired after 301s, got %+v", live)
	}

	// the sweep deletes the row and notifies the room
	reaper.runOnce(ctx)
	for _, conn := range []*fakeConn{aliceConn, bobConn} {
		exp := conn.ofType(EventMessagesExpired)
		if len(exp) != 1 {
			t.Fatalf("expected 1 messages_expired, got %d", len(exp))
		}
		payload := exp[0].Payload.(ExpiredPayload)
		if payload.Room != "lobby" || len(payload.MessageIDs) != 1 {
			t.Fatalf("wrong expiry notice: %+v", payload)
		}
	}

	// idempotent: a second sweep has nothing to say
	reaper.runOnce(ctx)
	if n := len(aliceConn.ofType(EventMessagesExpired)); n != 1 {
		t.Fatalf("second sweep must not re-notify, got %d notices", n)
	}

	// a newcomer sees an empty room
	_, carolConn := join(t, m, "carol", "lobby")
	carolHist := carolConn.ofType(EventRoomHistory)[0].Payload.(HistoryPayload)
	if len(carolHist.Messages) != 0 {
		t.Fatalf("carol should see empty history, got %+v", carolHist.Messages)
	}
}

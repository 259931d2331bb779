package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chess-vn/slpuzzle/internal/aws/auth"
	"github.com/chess-vn/slpuzzle/internal/bridge"
	"github.com/chess-vn/slpuzzle/internal/domains/dtos"
	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/internal/levelpool"
	"github.com/chess-vn/slpuzzle/internal/memstore"
	"github.com/chess-vn/slpuzzle/internal/multiplayer"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret       = "socket-secret"
	testBridgeSecret = "bridge-secret"
)

type recordingScheduler struct {
	mu        sync.Mutex
	scheduled []string
	cancelled []string
}

func (s *recordingScheduler) Schedule(match entities.Match) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, match.MatchId)
}

func (s *recordingScheduler) Cancel(matchId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, matchId)
}

func (s *recordingScheduler) counts(matchId string) (scheduled, cancelled int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.scheduled {
		if id == matchId {
			scheduled++
		}
	}
	for _, id := range s.cancelled {
		if id == matchId {
			cancelled++
		}
	}
	return scheduled, cancelled
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	clock     *clock
	scheduler *recordingScheduler
	manager   *multiplayer.Manager
	server    *Server
	http      *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	for i := range 40 {
		store.PutLevels(entities.Level{
			Id:          fmt.Sprintf("level-%02d", i),
			GameId:      "pathology",
			Difficulty:  float64(i * 15),
			Leastmoves:  10,
			ReviewCount: 5,
			CalcScore:   0.9,
			Published:   true,
		})
	}
	f := &fixture{
		clock:     &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		scheduler: &recordingScheduler{},
	}
	f.manager = multiplayer.NewManager(
		store,
		levelpool.NewProvider(store, rand.New(rand.NewPCG(3, 3))),
		f.scheduler,
		multiplayer.Config{GameId: "pathology"},
		multiplayer.WithClock(f.clock.Now),
	)
	f.server = NewServer(f.manager, auth.NewValidator(testSecret, ""), Config{BridgeSecret: testBridgeSecret})
	f.server.SetScheduler(f.scheduler)
	f.manager.SetReadiness(f.server)
	f.http = httptest.NewServer(f.server.Handler())
	t.Cleanup(func() {
		f.server.hub.closeAll()
		f.http.Close()
	})
	return f
}

func (f *fixture) dial(t *testing.T, userId, matchId string) *websocket.Conn {
	t.Helper()
	token, err := auth.IssueToken(testSecret, "", userId, time.Minute)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/socket?token=" + token
	if matchId != "" {
		url += "&matchId=" + matchId
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *fixture) activeMatch(t *testing.T, a, b string) entities.Match {
	t.Helper()
	ctx := context.Background()
	created, err := f.manager.CreateMatch(ctx, a, multiplayer.CreateMatchInput{Type: entities.MatchTypeRushBullet})
	require.NoError(t, err)
	joined, err := f.manager.Join(ctx, created.MatchId, b)
	require.NoError(t, err)
	return joined
}

// readEvent reads until an event of the given type arrives.
func readEvent(t *testing.T, conn *websocket.Conn, eventType string, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == eventType {
			require.NoError(t, json.Unmarshal(ev.Data, v))
			return
		}
	}
}

func TestSocketRequiresToken(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/socket"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLobbyConnectSendsMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	public, err := f.manager.CreateMatch(ctx, "alice", multiplayer.CreateMatchInput{Type: entities.MatchTypeRushBullet})
	require.NoError(t, err)
	private, err := f.manager.CreateMatch(ctx, "bob", multiplayer.CreateMatchInput{
		Type:    entities.MatchTypeRushBlitz,
		Private: true,
	})
	require.NoError(t, err)

	carol := f.dial(t, "carol", "")
	var lobby []dtos.MatchSummaryResponse
	readEvent(t, carol, EventMatches, &lobby)
	require.Len(t, lobby, 1)
	assert.Equal(t, public.MatchId, lobby[0].MatchId)
	var carolPrivate []dtos.MatchSummaryResponse
	readEvent(t, carol, EventPrivateAndInvitedMatches, &carolPrivate)
	assert.Empty(t, carolPrivate)
	var presence connectedPlayers
	readEvent(t, carol, EventConnectedPlayers, &presence)
	assert.Equal(t, []string{"carol"}, presence.Users)

	bob := f.dial(t, "bob", "")
	var bobPrivate []dtos.MatchSummaryResponse
	readEvent(t, bob, EventPrivateAndInvitedMatches, &bobPrivate)
	require.Len(t, bobPrivate, 1)
	assert.Equal(t, private.MatchId, bobPrivate[0].MatchId)

	readEvent(t, carol, EventConnectedPlayers, &presence)
	assert.Equal(t, 2, presence.Count)
	assert.Equal(t, []string{"bob", "carol"}, presence.Users)
}

func TestMatchSnapshotsAreRedactedPerViewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	match := f.activeMatch(t, "alice", "bob")

	alice := f.dial(t, "alice", match.MatchId)
	var snapshot dtos.MatchResponse
	readEvent(t, alice, EventMatch, &snapshot)
	assert.Empty(t, snapshot.Levels)
	assert.Equal(t, int64(10000), snapshot.TimeUntilStart)

	bob := f.dial(t, "bob", match.MatchId)
	readEvent(t, bob, EventMatch, &snapshot)
	require.Eventually(t, func() bool {
		return f.server.IsReady(match.MatchId, "alice") && f.server.IsReady(match.MatchId, "bob")
	}, 2*time.Second, 10*time.Millisecond)

	f.clock.Advance(multiplayer.DefaultStartDelay)
	started, err := f.manager.CheckStart(ctx, match.MatchId)
	require.NoError(t, err)
	require.True(t, started.Started)

	f.server.BroadcastMatch(match.MatchId)
	readEvent(t, alice, EventMatch, &snapshot)
	require.Len(t, snapshot.Levels, 1)
	assert.Equal(t, match.LevelIds[0], snapshot.Levels[0].Id)
	assert.Empty(t, snapshot.MatchLog)

	spectator := f.dial(t, "carol", match.MatchId)
	readEvent(t, spectator, EventMatch, &snapshot)
	assert.Len(t, snapshot.Levels, len(match.LevelIds))

	completed, err := f.manager.CompleteLevel(ctx, match.MatchId, "alice", match.LevelIds[0])
	require.NoError(t, err)
	require.True(t, completed)
	f.server.BroadcastMatch(match.MatchId)

	readEvent(t, alice, EventMatch, &snapshot)
	require.Len(t, snapshot.Levels, 1)
	assert.Equal(t, match.LevelIds[1], snapshot.Levels[0].Id)
	assert.Equal(t, 1, snapshot.ScoreTable["alice"])

	readEvent(t, bob, EventMatch, &snapshot)
	require.Len(t, snapshot.Levels, 1)
	assert.Equal(t, match.LevelIds[0], snapshot.Levels[0].Id)
}

func TestPresenceInRoom(t *testing.T) {
	f := newFixture(t)
	match := f.activeMatch(t, "alice", "bob")

	alice := f.dial(t, "alice", match.MatchId)
	bob := f.dial(t, "bob", match.MatchId)

	var room connectedPlayersInRoom
	for !slices.Equal(room.Users, []string{"alice", "bob"}) {
		readEvent(t, alice, EventConnectedPlayersInRoom, &room)
	}
	assert.Equal(t, match.MatchId, room.MatchId)

	require.NoError(t, bob.Close())
	for !slices.Equal(room.Users, []string{"alice"}) {
		readEvent(t, alice, EventConnectedPlayersInRoom, &room)
	}
	assert.False(t, f.server.IsReady(match.MatchId, "bob"))
}

func TestCheckStartAbortsWhenPlayerAbsent(t *testing.T) {
	f := newFixture(t)
	match := f.activeMatch(t, "alice", "bob")

	f.dial(t, "alice", match.MatchId)
	require.Eventually(t, func() bool {
		return f.server.IsReady(match.MatchId, "alice")
	}, 2*time.Second, 10*time.Millisecond)

	f.clock.Advance(multiplayer.DefaultStartDelay)
	aborted, err := f.manager.CheckStart(context.Background(), match.MatchId)
	require.NoError(t, err)
	assert.Equal(t, entities.MatchStateAborted, aborted.State)
	_, cancelled := f.scheduler.counts(match.MatchId)
	assert.Equal(t, 1, cancelled)
}

func TestDispatchCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	match := f.activeMatch(t, "alice", "bob")
	scheduledBefore, _ := f.scheduler.counts(match.MatchId)

	client := bridge.NewClient(f.http.URL, testBridgeSecret, f.http.Client())
	require.NoError(t, client.Send(ctx, bridge.Command{Type: bridge.CommandSchedule, MatchId: match.MatchId}))
	require.NoError(t, client.Send(ctx, bridge.Command{Type: bridge.CommandCancel, MatchId: match.MatchId}))
	scheduled, cancelled := f.scheduler.counts(match.MatchId)
	assert.Equal(t, scheduledBefore+1, scheduled)
	assert.Equal(t, 1, cancelled)

	err := f.server.Dispatch(ctx, bridge.Command{Type: bridge.CommandSchedule, MatchId: "missing"})
	require.ErrorIs(t, err, multiplayer.ErrMatchNotFound)

	alice := f.dial(t, "alice", "")
	readEvent(t, alice, EventConnectedPlayers, &connectedPlayers{})
	require.NoError(t, f.server.Dispatch(ctx, bridge.Command{
		Type:         bridge.CommandBroadcastNotification,
		UserId:       "alice",
		Notification: json.RawMessage(`{"message":"rematch?"}`),
	}))
	var notification map[string]string
	readEvent(t, alice, EventNotifications, &notification)
	assert.Equal(t, "rematch?", notification["message"])
}

func TestSlowClientIsDropped(t *testing.T) {
	h := newHub()
	c := newClient(nil, "alice", "")
	h.join(c, userRoom("alice"), lobbyRoom("pathology"))

	for range sendBuffer {
		h.emit(userRoom("alice"), []byte("{}"))
	}
	assert.True(t, h.contains(userRoom("alice"), "alice"))

	h.emit(userRoom("alice"), []byte("{}"))
	assert.False(t, h.contains(userRoom("alice"), "alice"))
	assert.Empty(t, h.clients(lobbyRoom("pathology")))
	assert.False(t, c.enqueue([]byte("{}")))
}

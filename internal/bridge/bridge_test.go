package bridge

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	commands []Command
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, cmd Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, cmd)
	return nil
}

func (d *recordingDispatcher) received() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Command{}, d.commands...)
}

func TestCommandValidate(t *testing.T) {
	assert.NoError(t, Command{Type: CommandBroadcastMatch, MatchId: "m"}.Validate())
	assert.NoError(t, Command{Type: CommandBroadcastMatches}.Validate())
	assert.ErrorIs(t, Command{Type: CommandBroadcastMatch}.Validate(), ErrInvalidCommand)
	assert.ErrorIs(t, Command{Type: CommandBroadcastNotification, MatchId: "m"}.Validate(), ErrInvalidCommand)
	assert.ErrorIs(t, Command{Type: "reboot"}.Validate(), ErrInvalidCommand)
}

func TestClientDeliversToHandler(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	mux := http.NewServeMux()
	mux.Handle(CommandsPath, NewHandler(dispatcher, "bridge-secret"))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL, "bridge-secret", srv.Client())
	err := client.Send(context.Background(), Command{Type: CommandSchedule, MatchId: "m1"})
	require.NoError(t, err)
	assert.Equal(t, []Command{{Type: CommandSchedule, MatchId: "m1"}}, dispatcher.received())

	forged := NewClient(srv.URL, "wrong-secret", srv.Client())
	err = forged.Send(context.Background(), Command{Type: CommandCancel, MatchId: "m1"})
	require.ErrorContains(t, err, "status 401")

	err = client.Send(context.Background(), Command{Type: CommandCancel})
	require.ErrorIs(t, err, ErrInvalidCommand)
	assert.Len(t, dispatcher.received(), 1)
}

func TestHandlerRejectsUnsignedRequests(t *testing.T) {
	handler := NewHandler(&recordingDispatcher{}, "bridge-secret")

	r := httptest.NewRequest(http.MethodPost, CommandsPath, bytes.NewBufferString(`{"type":"cancel","matchId":"m"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r = httptest.NewRequest(http.MethodGet, CommandsPath, nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPublisherMatchChanged(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	publisher := NewPublisher(NewLocal(dispatcher), "pathology")

	publisher.MatchChanged(entities.Match{
		MatchId:   "m1",
		GameId:    "pathology",
		CreatedBy: "alice",
		Players:   []string{"alice", "bob"},
		Private:   true,
	})

	assert.Equal(t, []Command{
		{Type: CommandBroadcastMatch, MatchId: "m1"},
		{Type: CommandBroadcastMatches, GameId: "pathology"},
		{Type: CommandBroadcastPrivateMatches, UserId: "alice"},
		{Type: CommandBroadcastPrivateMatches, UserId: "bob"},
	}, dispatcher.received())
}

func TestPublisherSwallowsFailures(t *testing.T) {
	publisher := NewPublisher(NewClient("http://127.0.0.1:1", "s", nil), "pathology")
	publisher.Cancel("m1")
	publisher.BroadcastNotification("alice", map[string]string{"message": "hi"})
}

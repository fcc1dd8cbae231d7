package sessions

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segfault-society/saathi/models"
	"github.com/segfault-society/saathi/stores"
)

// stubGenerator records the history it receives and replays canned output.
type stubGenerator struct {
	reply     string
	fragments []string
	err       error

	calls       int
	gotHistory  []models.HistoryEntry
	streamCalls int
}

func (g *stubGenerator) Generate(ctx context.Context, history []models.HistoryEntry) (string, error) {
	g.calls++
	g.gotHistory = history
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *stubGenerator) GenerateStream(ctx context.Context, history []models.HistoryEntry) (<-chan string, <-chan error) {
	g.streamCalls++
	g.gotHistory = history

	fragChan := make(chan string)
	errChan := make(chan error, 1)
	go func() {
		defer close(fragChan)
		defer close(errChan)
		for _, frag := range g.fragments {
			select {
			case fragChan <- frag:
			case <-ctx.Done():
				return
			}
		}
		if g.err != nil {
			errChan <- g.err
		}
	}()
	return fragChan, errChan
}

// failingStore simulates an unreachable session store.
type failingStore struct{}

func (failingStore) EnsureSession(string) (bool, error)           { return false, errors.New("store down") }
func (failingStore) FetchTurns(string, int) ([]stores.Turn, error) { return nil, errors.New("store down") }
func (failingStore) AppendTurn(string, stores.Turn) error          { return errors.New("store down") }
func (failingStore) ListSessions() ([]string, error)               { return nil, errors.New("store down") }
func (failingStore) ListSessionInfo() ([]stores.SessionInfo, error) {
	return nil, errors.New("store down")
}
func (failingStore) Connect() error { return errors.New("store down") }
func (failingStore) Close() error   { return nil }
func (failingStore) Ping() error    { return errors.New("store down") }

func drainStream(t *testing.T, fragChan <-chan string, errChan <-chan error) ([]string, error) {
	t.Helper()
	var fragments []string
	for frag := range fragChan {
		fragments = append(fragments, frag)
	}
	return fragments, <-errChan
}

func errKind(t *testing.T, err error) ErrorKind {
	t.Helper()
	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	return sErr.Kind
}

func TestAnswer_MissingMessageHasNoSideEffects(t *testing.T) {
	gen := &stubGenerator{reply: "unused"}
	store := stores.NewMemoryStore()
	m := NewManager(ModeServerPersisted, gen).WithStore(store)

	_, err := m.Answer(context.Background(), models.ChatRequest{SessionID: "s1"})
	assert.Equal(t, KindInvalidRequest, errKind(t, err))
	assert.Zero(t, gen.calls, "generator must not be called for an invalid request")

	sessions, listErr := store.ListSessions()
	require.NoError(t, listErr)
	assert.Empty(t, sessions, "store must not be mutated for an invalid request")
}

func TestAnswer_ServerModeRequiresSessionID(t *testing.T) {
	gen := &stubGenerator{reply: "unused"}
	m := NewManager(ModeServerPersisted, gen).WithStore(stores.NewMemoryStore())

	_, err := m.Answer(context.Background(), models.ChatRequest{Message: "hi"})
	assert.Equal(t, KindInvalidRequest, errKind(t, err))
	assert.Zero(t, gen.calls)
}

func TestEnsureSession_Idempotent(t *testing.T) {
	m := NewManager(ModeServerPersisted, &stubGenerator{}).WithStore(stores.NewMemoryStore())

	status, err := m.EnsureSession("abc")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCreated, status)

	status, err = m.EnsureSession("abc")
	require.NoError(t, err)
	assert.Equal(t, models.SessionAlreadyExists, status)

	turns, err := m.SessionTurns("abc")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestAnswer_Stateless(t *testing.T) {
	gen := &stubGenerator{reply: "4"}
	m := NewManager(ModeStateless, gen)

	result, err := m.Answer(context.Background(), models.ChatRequest{Message: "2+2?"})
	require.NoError(t, err)
	assert.Equal(t, "4", result.Reply)
	assert.Nil(t, result.History)
	assert.Nil(t, result.Turn)

	// Only the new message reaches the generator.
	require.Len(t, gen.gotHistory, 1)
	assert.Equal(t, models.UserEntry("2+2?"), gen.gotHistory[0])
}

func TestAnswer_ServerPersistedReplaysHistoryAndAppends(t *testing.T) {
	gen := &stubGenerator{reply: "Fine"}
	store := stores.NewMemoryStore()
	require.NoError(t, store.AppendTurn("s1", stores.Turn{UserPrompt: "Hi", BotResponse: "Hello"}))

	m := NewManager(ModeServerPersisted, gen).WithStore(store)
	result, err := m.Answer(context.Background(), models.ChatRequest{Message: "How are you?", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "Fine", result.Reply)

	want := []models.HistoryEntry{
		models.UserEntry("Hi"),
		models.ModelEntry("Hello"),
		models.UserEntry("How are you?"),
	}
	assert.Equal(t, want, gen.gotHistory, "generator must receive prior turns flattened in order plus the new message")

	turns, err := store.FetchTurns("s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2, "store must gain exactly one turn")
	assert.Equal(t, "How are you?", turns[1].UserPrompt)
	assert.Equal(t, "Fine", turns[1].BotResponse)
	assert.False(t, turns[1].Timestamp.Before(turns[0].Timestamp))
	require.NotNil(t, result.Turn)
	assert.Equal(t, "Fine", result.Turn.BotResponse)
}

func TestAnswer_OrderPreservingReconstruction(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	store := stores.NewMemoryStore()
	for _, pair := range [][2]string{{"q1", "a1"}, {"q2", "a2"}, {"q3", "a3"}} {
		require.NoError(t, store.AppendTurn("s1", stores.Turn{UserPrompt: pair[0], BotResponse: pair[1]}))
	}

	m := NewManager(ModeServerPersisted, gen).WithStore(store)
	_, err := m.Answer(context.Background(), models.ChatRequest{Message: "q4", SessionID: "s1"})
	require.NoError(t, err)

	want := []models.HistoryEntry{
		models.UserEntry("q1"), models.ModelEntry("a1"),
		models.UserEntry("q2"), models.ModelEntry("a2"),
		models.UserEntry("q3"), models.ModelEntry("a3"),
		models.UserEntry("q4"),
	}
	assert.Equal(t, want, gen.gotHistory)
}

func TestAnswer_MalformedStoredTurnsAreSkipped(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	store := stores.NewMemoryStore()
	require.NoError(t, store.AppendTurn("s1", stores.Turn{UserPrompt: "Hi", BotResponse: "Hello"}))
	require.NoError(t, store.AppendTurn("s1", stores.Turn{UserPrompt: "orphan", BotResponse: ""}))
	require.NoError(t, store.AppendTurn("s1", stores.Turn{UserPrompt: "Bye", BotResponse: "Goodbye"}))

	m := NewManager(ModeServerPersisted, gen).WithStore(store)
	_, err := m.Answer(context.Background(), models.ChatRequest{Message: "next", SessionID: "s1"})
	require.NoError(t, err)

	want := []models.HistoryEntry{
		models.UserEntry("Hi"), models.ModelEntry("Hello"),
		models.UserEntry("Bye"), models.ModelEntry("Goodbye"),
		models.UserEntry("next"),
	}
	assert.Equal(t, want, gen.gotHistory, "malformed turn must be excluded without aborting the request")
}

func TestAnswer_ClientHistoryMode(t *testing.T) {
	gen := &stubGenerator{reply: "Fine"}
	m := NewManager(ModeClientHistory, gen)

	prior := []models.HistoryEntry{
		models.UserEntry("Hi"),
		models.ModelEntry("Hello"),
	}
	result, err := m.Answer(context.Background(), models.ChatRequest{Message: "How are you?", History: prior})
	require.NoError(t, err)

	want := append(append([]models.HistoryEntry{}, prior...),
		models.UserEntry("How are you?"),
		models.ModelEntry("Fine"),
	)
	assert.Equal(t, want, result.History, "caller gets the updated full history back")
	assert.Nil(t, result.Turn)
}

func TestAnswer_GenerationFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("quota exceeded")}
	store := stores.NewMemoryStore()
	m := NewManager(ModeServerPersisted, gen).WithStore(store)

	_, err := m.Answer(context.Background(), models.ChatRequest{Message: "hi", SessionID: "s1"})
	assert.Equal(t, KindGenerationFailure, errKind(t, err))

	turns, fetchErr := store.FetchTurns("s1", 0)
	require.NoError(t, fetchErr)
	assert.Empty(t, turns, "no turn may be persisted on generation failure")
}

func TestAnswer_StoreUnavailable(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	m := NewManager(ModeServerPersisted, gen).WithStore(failingStore{})

	_, err := m.Answer(context.Background(), models.ChatRequest{Message: "hi", SessionID: "s1"})
	assert.Equal(t, KindStoreUnavailable, errKind(t, err))
	assert.Zero(t, gen.calls, "generator must not run when history cannot be read")
}

func TestAnswer_DegradedModeStillAnswers(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	m := NewManager(ModeServerPersisted, gen).WithStore(failingStore{}).WithDegradedMode(true)

	result, err := m.Answer(context.Background(), models.ChatRequest{Message: "hi", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Reply)
	assert.True(t, result.Degraded, "degraded state must be reported, not hidden")
	assert.Nil(t, result.Turn)
}

func TestAnswerStream_AccumulationMatchesWholeResult(t *testing.T) {
	fragments := []string{"Par", "is is the ", "capital of France."}
	gen := &stubGenerator{fragments: fragments}
	store := stores.NewMemoryStore()
	m := NewManager(ModeServerPersisted, gen).WithStore(store)

	fragChan, errChan, _ := m.AnswerStream(context.Background(), models.ChatRequest{Message: "Capital of France?", SessionID: "s1"})
	got, err := drainStream(t, fragChan, errChan)
	require.NoError(t, err)

	assert.Equal(t, fragments, got, "fragments must be relayed in exact arrival order")

	turns, fetchErr := store.FetchTurns("s1", 0)
	require.NoError(t, fetchErr)
	require.Len(t, turns, 1)
	assert.Equal(t, strings.Join(fragments, ""), turns[0].BotResponse,
		"persisted text must equal the concatenation of all fragments")
	assert.Equal(t, "Capital of France?", turns[0].UserPrompt)
}

func TestAnswerStream_MidStreamFailurePersistsNothing(t *testing.T) {
	gen := &stubGenerator{fragments: []string{"Par"}, err: errors.New("connection reset")}
	store := stores.NewMemoryStore()
	m := NewManager(ModeServerPersisted, gen).WithStore(store)

	fragChan, errChan, _ := m.AnswerStream(context.Background(), models.ChatRequest{Message: "hi", SessionID: "s1"})
	got, err := drainStream(t, fragChan, errChan)

	assert.Equal(t, []string{"Par"}, got, "fragments already emitted are not retracted")
	assert.Equal(t, KindGenerationFailure, errKind(t, err))

	turns, fetchErr := store.FetchTurns("s1", 0)
	require.NoError(t, fetchErr)
	assert.Empty(t, turns, "a partial reply must never be persisted as a completed turn")
}

func TestAnswerStream_EmptyStreamIsFailure(t *testing.T) {
	gen := &stubGenerator{}
	store := stores.NewMemoryStore()
	m := NewManager(ModeServerPersisted, gen).WithStore(store)

	fragChan, errChan, _ := m.AnswerStream(context.Background(), models.ChatRequest{Message: "hi", SessionID: "s1"})
	got, err := drainStream(t, fragChan, errChan)

	assert.Empty(t, got)
	assert.Equal(t, KindGenerationFailure, errKind(t, err))
}

func TestAnswerStream_InvalidRequestBeforeAnyWork(t *testing.T) {
	gen := &stubGenerator{fragments: []string{"x"}}
	m := NewManager(ModeStateless, gen)

	fragChan, errChan, _ := m.AnswerStream(context.Background(), models.ChatRequest{})
	got, err := drainStream(t, fragChan, errChan)

	assert.Empty(t, got)
	assert.Equal(t, KindInvalidRequest, errKind(t, err))
	assert.Zero(t, gen.streamCalls)
}

func TestAnswerStream_CancelMidStreamPersistsNothing(t *testing.T) {
	gen := &stubGenerator{fragments: []string{"Par", "is is the ", "capital of France."}}
	store := stores.NewMemoryStore()
	m := NewManager(ModeServerPersisted, gen).WithStore(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fragChan, errChan, _ := m.AnswerStream(ctx, models.ChatRequest{Message: "Capital of France?", SessionID: "s1"})

	first, ok := <-fragChan
	require.True(t, ok)
	assert.Equal(t, "Par", first)

	// The consumer goes away after the first fragment.
	cancel()
	for range fragChan {
	}
	<-errChan

	turns, err := store.FetchTurns("s1", 0)
	require.NoError(t, err)
	assert.Empty(t, turns, "a turn cut short by the consumer must not be persisted")
}

func TestAnswerStream_DegradedSignal(t *testing.T) {
	gen := &stubGenerator{fragments: []string{"ok"}}
	m := NewManager(ModeServerPersisted, gen).WithStore(failingStore{}).WithDegradedMode(true)

	fragChan, errChan, degradedChan := m.AnswerStream(context.Background(), models.ChatRequest{Message: "hi", SessionID: "s1"})

	assert.True(t, <-degradedChan, "a store that cannot be read must be reported as degraded")
	got, err := drainStream(t, fragChan, errChan)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, got)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"stateless", ModeStateless, false},
		{"client_history", ModeClientHistory, false},
		{"server_persisted", ModeServerPersisted, false},
		{"", ModeStateless, false},
		{"clustered", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

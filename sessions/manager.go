package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segfault-society/saathi/logger"
	"github.com/segfault-society/saathi/models"
	"github.com/segfault-society/saathi/stores"
)

// EnsureSession creates the session record if absent and reports the outcome.
// It is idempotent: repeating the call never touches an existing record's turns.
func (m *Manager) EnsureSession(sessionID string) (string, error) {
	if sessionID == "" {
		return "", invalidRequest("'session_id' is required")
	}
	if m.Store == nil {
		return "", storeUnavailable(errors.New("no session store configured"))
	}

	created, err := m.Store.EnsureSession(sessionID)
	if err != nil {
		return "", storeUnavailable(err)
	}
	if created {
		return models.SessionCreated, nil
	}
	return models.SessionAlreadyExists, nil
}

// SessionTurns returns the stored turns for a session, oldest first.
func (m *Manager) SessionTurns(sessionID string) ([]stores.Turn, error) {
	if sessionID == "" {
		return nil, invalidRequest("'session_id' is required")
	}
	if m.Store == nil {
		return nil, storeUnavailable(errors.New("no session store configured"))
	}

	turns, err := m.Store.FetchTurns(sessionID, 0)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return turns, nil
}

// Sessions lists known sessions with their metadata.
func (m *Manager) Sessions() ([]stores.SessionInfo, error) {
	if m.Store == nil {
		return nil, storeUnavailable(errors.New("no session store configured"))
	}

	infos, err := m.Store.ListSessionInfo()
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return infos, nil
}

// validateChat enforces the request shape for the active mode. It runs before
// any store or generator work so a rejected request has no side effects.
func (m *Manager) validateChat(req models.ChatRequest) *Error {
	if req.Message == "" {
		return invalidRequest("'message' is required")
	}
	if m.Mode == ModeServerPersisted && req.SessionID == "" {
		return invalidRequest("'session_id' is required")
	}
	return nil
}

// priorHistory obtains the prior turns for this request per the active mode
// and flattens them into model-ready entries. The degraded flag reports that
// the store could not be read and the request proceeds without context.
func (m *Manager) priorHistory(req models.ChatRequest) ([]models.HistoryEntry, bool, *Error) {
	switch m.Mode {
	case ModeStateless:
		return nil, false, nil

	case ModeClientHistory:
		return req.History, false, nil

	case ModeServerPersisted:
		if m.Store == nil {
			if m.AllowDegraded {
				return nil, true, nil
			}
			return nil, false, storeUnavailable(errors.New("no session store configured"))
		}

		if m.AutoCreateSessions {
			if _, err := m.Store.EnsureSession(req.SessionID); err != nil {
				logger.L.Warn("implicit session create failed", "session_id", req.SessionID, "error", err)
			}
		}

		turns, err := m.Store.FetchTurns(req.SessionID, m.HistoryLimit)
		if err != nil {
			if m.AllowDegraded {
				logger.L.Warn("answering without history, store read failed", "session_id", req.SessionID, "error", err)
				return nil, true, nil
			}
			return nil, false, storeUnavailable(err)
		}

		return FlattenTurns(turns), false, nil

	default:
		return nil, false, invalidRequest(fmt.Sprintf("unknown session mode: %q", m.Mode))
	}
}

// FlattenTurns converts stored turns into model-ready entries, two per turn
// in chronological order. Turns missing either side are skipped rather than
// failing the whole reconstruction.
func FlattenTurns(turns []stores.Turn) []models.HistoryEntry {
	turns = stores.SanitizeTurns(turns)
	entries := make([]models.HistoryEntry, 0, len(turns)*2)
	for _, turn := range turns {
		entries = append(entries, models.UserEntry(turn.UserPrompt))
		entries = append(entries, models.ModelEntry(turn.BotResponse))
	}
	return entries
}

// persistTurn appends the completed turn in server-persisted mode. The
// append is a single insert so concurrent turns on one session never clobber
// each other's rows.
func (m *Manager) persistTurn(req models.ChatRequest, reply string, completedAt time.Time) (*stores.Turn, bool, *Error) {
	turn := stores.Turn{
		UserPrompt:  req.Message,
		BotResponse: reply,
		Timestamp:   completedAt,
	}

	if err := m.Store.AppendTurn(req.SessionID, turn); err != nil {
		if m.AllowDegraded {
			logger.L.Warn("reply delivered without persistence, store append failed", "session_id", req.SessionID, "error", err)
			return nil, true, nil
		}
		return nil, false, storeUnavailable(err)
	}
	return &turn, false, nil
}

// Answer handles one whole-result chat turn: validate, reconstruct history,
// generate, and (in server-persisted mode) append the completed turn.
func (m *Manager) Answer(ctx context.Context, req models.ChatRequest) (Result, error) {
	if err := m.validateChat(req); err != nil {
		return Result{}, err
	}

	prior, degraded, verr := m.priorHistory(req)
	if verr != nil {
		return Result{}, verr
	}

	history := append(append([]models.HistoryEntry{}, prior...), models.UserEntry(req.Message))

	reply, err := m.Generator.Generate(ctx, history)
	if err != nil {
		logger.L.Error("generation failed", "session_id", req.SessionID, "error", err)
		return Result{}, generationFailure(err)
	}
	completedAt := time.Now().UTC()

	result := Result{Reply: reply, Degraded: degraded}

	switch m.Mode {
	case ModeClientHistory:
		result.History = append(history, models.ModelEntry(reply))

	case ModeServerPersisted:
		if degraded {
			break
		}
		turn, appendDegraded, perr := m.persistTurn(req, reply, completedAt)
		if perr != nil {
			return Result{}, perr
		}
		result.Turn = turn
		result.Degraded = result.Degraded || appendDegraded
	}

	return result, nil
}

// AnswerStream handles one streamed chat turn. Fragments are relayed on the
// returned channel in exact arrival order while the full reply accumulates
// for persistence. The turn is appended only after the stream completes
// cleanly; a mid-stream failure or a cancelled context surfaces no persisted
// turn, though fragments already relayed are not retracted. The degraded
// channel reports, before the first fragment, whether the reply is being
// produced without store context. All channels are closed when the
// interaction ends.
func (m *Manager) AnswerStream(ctx context.Context, req models.ChatRequest) (<-chan string, <-chan error, <-chan bool) {
	fragChan := make(chan string)
	errChan := make(chan error, 1)
	degradedChan := make(chan bool, 1)

	go func() {
		defer close(fragChan)
		defer close(errChan)
		defer close(degradedChan)

		if err := m.validateChat(req); err != nil {
			errChan <- err
			return
		}

		prior, degraded, verr := m.priorHistory(req)
		if verr != nil {
			errChan <- verr
			return
		}
		degradedChan <- degraded

		history := append(append([]models.HistoryEntry{}, prior...), models.UserEntry(req.Message))

		genFrags, genErrs := m.Generator.GenerateStream(ctx, history)

		fullReply := ""
		for {
			select {
			case frag, ok := <-genFrags:
				if !ok {
					// Keep draining the error channel before declaring the
					// turn complete; a buffered failure may still be pending.
					genFrags = nil
					break
				}
				fullReply += frag
				select {
				case fragChan <- frag:
				case <-ctx.Done():
					// Sink is gone; stop relaying and do not persist the partial turn.
					logger.L.Debug("stream consumer went away", "session_id", req.SessionID)
					return
				}

			case genErr, ok := <-genErrs:
				if ok && genErr != nil {
					logger.L.Error("generation failed mid-stream", "session_id", req.SessionID, "error", genErr)
					errChan <- generationFailure(genErr)
					return
				}
				if !ok {
					genErrs = nil
				}

			case <-ctx.Done():
				return
			}

			if genFrags == nil && genErrs == nil {
				m.finishStream(ctx, req, fullReply, degraded, errChan)
				return
			}
		}
	}()

	return fragChan, errChan, degradedChan
}

// finishStream persists the accumulated reply after a clean stream end. A
// generator that bails out on cancellation closes its channels without an
// error, so the context is checked again here; a cancelled turn is partial
// and must not be persisted.
func (m *Manager) finishStream(ctx context.Context, req models.ChatRequest, fullReply string, degraded bool, errChan chan<- error) {
	if ctx.Err() != nil {
		logger.L.Debug("stream cancelled, discarding partial turn", "session_id", req.SessionID)
		return
	}

	if fullReply == "" {
		logger.L.Error("stream ended with no usable text", "session_id", req.SessionID)
		errChan <- generationFailure(errors.New("stream produced no usable text"))
		return
	}

	if m.Mode != ModeServerPersisted || degraded {
		return
	}

	if _, _, perr := m.persistTurn(req, fullReply, time.Now().UTC()); perr != nil {
		// The reply already streamed to the client; all that is left is to
		// surface the persistence failure.
		errChan <- perr
	}
}

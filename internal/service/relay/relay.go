package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eli-ai/eli-backend/internal/auth"
	"github.com/eli-ai/eli-backend/internal/metrics"
	"github.com/eli-ai/eli-backend/internal/model/chat"
	evimodel "github.com/eli-ai/eli-backend/internal/model/evi"
	"github.com/eli-ai/eli-backend/internal/store"
)

// Close reasons sent to the client. Only the auth rejection carries a
// policy-specific code; every other failure looks the same from the
// outside.
const (
	closeReasonBadToken = "invalid or missing token"
	closeReasonUpstream = "upstream unavailable"
	closeReasonGeneric  = "session closed"
)

// Teardown causes, used as the metrics label.
const (
	causeClient   = "client"
	causeUpstream = "upstream"
	causeShutdown = "shutdown"
	causeFault    = "fault"
)

const (
	teardownTimeout = 5 * time.Second
	pingInterval    = 30 * time.Second
)

// Upstream is one open connection to the analysis service.
type Upstream interface {
	SendInput(text string) error
	Next() (*evimodel.Message, error)
	Close() error
}

// Dialer opens upstream connections.
type Dialer interface {
	Connect(ctx context.Context) (Upstream, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Upstream, error)

// Connect implements Dialer.
func (f DialerFunc) Connect(ctx context.Context) (Upstream, error) {
	return f(ctx)
}

// Service builds one relay session per accepted websocket connection.
// It holds only process-wide dependencies; all per-connection state
// lives in the session.
type Service struct {
	verifier    *auth.Verifier
	dialer      Dialer
	store       store.Store
	log         zerolog.Logger
	idleTimeout time.Duration
	sessions    sync.WaitGroup
}

// NewService wires the relay's collaborators together.
func NewService(verifier *auth.Verifier, dialer Dialer, st store.Store, log zerolog.Logger, idleTimeout time.Duration) *Service {
	return &Service{
		verifier:    verifier,
		dialer:      dialer,
		store:       st,
		log:         log,
		idleTimeout: idleTimeout,
	}
}

// HandleConnection runs the full relay lifecycle for one client
// websocket: authenticate, open the upstream socket, persist the chat
// records, pump both directions, and tear everything down exactly once.
// It returns when the session is fully closed.
func (s *Service) HandleConnection(ctx context.Context, conn *websocket.Conn, token string) {
	s.sessions.Add(1)
	defer s.sessions.Done()

	var (
		userID string
		sess   *session
	)
	defer func() {
		// Faults stay inside this relay instance. The client only ever
		// sees a generic close, never the fault itself.
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("user_id", userID).Msg("relay fault")
			if sess != nil {
				sess.teardown(causeFault)
				return
			}
			closeWith(conn, websocket.CloseInternalServerErr, closeReasonGeneric)
			_ = conn.Close()
		}
	}()

	userID, ok := s.verifier.Verify(token)
	if !ok {
		metrics.AuthRejections.Inc()
		s.log.Warn().Msg("websocket rejected: bad or missing token")
		closeWith(conn, websocket.ClosePolicyViolation, closeReasonBadToken)
		_ = conn.Close()
		return
	}

	log := s.log.With().Str("user_id", userID).Logger()

	upstream, err := s.dialer.Connect(ctx)
	if err != nil {
		metrics.UpstreamDialFailures.Inc()
		log.Error().Err(err).Msg("evi handshake failed")
		_ = conn.WriteJSON(map[string]string{"type": "error", "message": closeReasonUpstream})
		closeWith(conn, websocket.CloseInternalServerErr, closeReasonUpstream)
		_ = conn.Close()
		return
	}

	sess = &session{
		store:    s.store,
		log:      log,
		userID:   userID,
		client:   conn,
		upstream: upstream,
		idle:     s.idleTimeout,
	}
	sess.run(ctx)
}

// Drain blocks until every active relay session has finished its
// teardown, or until ctx expires. http.Server.Shutdown does not track
// hijacked websocket connections, so the server calls this after
// Shutdown returns.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type pumpResult struct {
	cause string
	err   error
}

// session is one relay instance: the state for exactly one client
// connection and its paired upstream socket.
type session struct {
	store    store.Store
	log      zerolog.Logger
	userID   string
	client   *websocket.Conn
	upstream Upstream
	idle     time.Duration

	group     *chat.Group
	chat      *chat.Chat
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *session) run(ctx context.Context) {
	now := time.Now().UTC()

	group, err := s.store.CreateGroup(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("create chat group failed")
		s.teardown(causeFault)
		return
	}
	s.group = group

	chatRec, err := s.store.CreateChat(ctx, group.ID, s.userID, now)
	if err != nil {
		s.log.Error().Err(err).Msg("create chat failed")
		s.teardown(causeFault)
		return
	}
	s.chat = chatRec

	s.log.Info().Str("chat_group_id", group.ID).Str("chat_id", chatRec.ID).Msg("relay session active")
	metrics.SessionsStarted.Inc()
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	if s.idle > 0 {
		_ = s.client.SetReadDeadline(time.Now().Add(s.idle))
		s.client.SetPongHandler(func(string) error {
			return s.client.SetReadDeadline(time.Now().Add(s.idle))
		})
	}
	go s.pingLoop(ctx)

	// Process shutdown reaches the session through the context. After a
	// normal teardown this is a no-op.
	go func() {
		<-ctx.Done()
		s.teardown(causeShutdown)
	}()

	// Two pumps, first to stop wins. Teardown closes both sockets,
	// which unblocks whichever pump is still parked on a read.
	results := make(chan pumpResult, 2)
	go func() { results <- s.safePump(s.pumpInbound) }()
	go func() { results <- s.safePump(func() pumpResult { return s.pumpOutbound(ctx) }) }()

	first := <-results
	switch {
	case first.cause == causeFault:
		s.log.Error().Err(first.err).Msg("pump fault")
	case first.err != nil && !errors.Is(first.err, io.EOF):
		s.log.Debug().Err(first.err).Str("cause", first.cause).Msg("pump stopped")
	}
	s.teardown(first.cause)
	<-results
}

// safePump keeps a panicking pump from taking the process down with it.
// The panic becomes a fault result and the session tears down normally.
func (s *session) safePump(pump func() pumpResult) (res pumpResult) {
	defer func() {
		if r := recover(); r != nil {
			res = pumpResult{cause: causeFault, err: fmt.Errorf("pump panic: %v", r)}
		}
	}()
	return pump()
}

// pumpInbound moves text frames from the client to the upstream socket.
func (s *session) pumpInbound() pumpResult {
	for {
		if s.idle > 0 {
			_ = s.client.SetReadDeadline(time.Now().Add(s.idle))
		}
		msgType, data, err := s.client.ReadMessage()
		if err != nil {
			return pumpResult{cause: causeClient, err: err}
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := s.upstream.SendInput(string(data)); err != nil {
			return pumpResult{cause: causeUpstream, err: err}
		}
	}
}

// pumpOutbound moves upstream messages to the client, persisting the
// conversational turns as it goes. A failed write to the store is
// logged and counted but never stops the conversation.
func (s *session) pumpOutbound(ctx context.Context) pumpResult {
	for {
		msg, err := s.upstream.Next()
		if err != nil {
			return pumpResult{cause: causeUpstream, err: err}
		}

		if err := s.client.WriteMessage(websocket.TextMessage, msg.Raw); err != nil {
			return pumpResult{cause: causeClient, err: err}
		}

		role, kind, persist := msg.Classify()
		if !persist {
			continue
		}

		event := &chat.Event{
			ID:              uuid.NewString(),
			ChatID:          s.chat.ID,
			Timestamp:       time.Now().UTC(),
			Role:            role,
			Type:            kind,
			MessageText:     msg.Text(),
			EmotionFeatures: msg.EmotionScores(),
		}
		if err := s.store.AppendEvent(ctx, event); err != nil {
			metrics.EventWriteFailures.Inc()
			s.log.Error().Err(err).Str("chat_id", s.chat.ID).Str("type", string(kind)).Msg("event write failed, dropping event")
			continue
		}
		s.chat.EventCount++
		metrics.EventsPersisted.WithLabelValues(string(kind)).Inc()
	}
}

// teardown finalizes the session: close the chat, deactivate the
// group, release the upstream socket, close the client. It runs at
// most once; a second termination signal is a no-op. Store writes use
// a fresh context so a canceled session context cannot skip them.
func (s *session) teardown(cause string) {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}

		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()

		end := time.Now().UTC()
		if s.chat != nil {
			if err := s.store.CloseChat(ctx, s.chat.ID, end); err != nil && !errors.Is(err, store.ErrChatClosed) {
				s.log.Error().Err(err).Str("chat_id", s.chat.ID).Msg("close chat failed")
			}
		}
		if s.group != nil {
			if err := s.store.DeactivateGroup(ctx, s.group.ID); err != nil {
				s.log.Error().Err(err).Str("chat_group_id", s.group.ID).Msg("deactivate chat group failed")
			}
		}

		_ = s.upstream.Close()
		closeWith(s.client, websocket.CloseNormalClosure, closeReasonGeneric)
		_ = s.client.Close()

		metrics.SessionsClosed.WithLabelValues(cause).Inc()
		s.log.Info().Str("cause", cause).Msg("relay session closed")
	})
}

// pingLoop keeps the client connection alive while the session runs.
func (s *session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := s.client.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// Package gameserver is the authoritative side of the session protocol: it
// owns every connected client, lobby and in-progress game behind one lock and
// serializes all state mutation to one critical section per inbound message.
package gameserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/phuslu/log"

	"github.com/WillBeesOn/game-client-server/internal/gamemodule"
	"github.com/WillBeesOn/game-client-server/internal/protocol"
)

// AuthFunc decides whether a ConnectRequest with the given payload is
// accepted. The default accepts everything.
type AuthFunc func(payload []byte) bool

func NoAuth([]byte) bool { return true }

type client struct {
	conn net.Conn
	id   string
	// lobbyID is empty while the client is not in a lobby.
	lobbyID string
	// nextMessageID is the next expected sequence number from this client.
	nextMessageID uint32
}

// outbound is one pending socket write. Handlers build these under the lock;
// the writes themselves happen after it is released, so a stalled peer cannot
// stall the whole server.
type outbound struct {
	conn net.Conn
	data []byte
}

type Server struct {
	listener net.Listener
	logger   *log.Logger

	auth        AuthFunc
	readTimeout time.Duration

	mu       sync.Mutex
	clients  map[string]*client
	lobbies  map[string]*protocol.Lobby
	registry *gamemodule.Registry
	// sessions holds live games, keyed by lobby id.
	sessions map[string]gamemodule.GameModule
}

func NewServer(network, address string, logger *log.Logger) (*Server, error) {
	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("could not listen tcp: %w", err)
	}

	// if logger is nil (which might be true in tests) => use default, but
	// silenced logger
	if logger == nil {
		tmp := log.DefaultLogger
		logger = &tmp
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}

	s := &Server{
		listener: listener,
		logger:   logger,

		auth: NoAuth,

		clients:  make(map[string]*client),
		lobbies:  make(map[string]*protocol.Lobby),
		registry: gamemodule.NewRegistry(),
		sessions: make(map[string]gamemodule.GameModule),
	}

	return s, nil
}

// Addr can be useful to retrieve the server's address when it was constructed
// with ":0".
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// SetAuth replaces the connect-time authentication hook.
func (s *Server) SetAuth(auth AuthFunc) {
	if auth == nil {
		auth = NoAuth
	}
	s.auth = auth
}

// SetReadTimeout sets the per-read inactivity deadline. Zero disables it; an
// expired deadline is a transport error and runs disconnect cleanup.
func (s *Server) SetReadTimeout(d time.Duration) {
	s.readTimeout = d
}

// RegisterGame registers a game module template, indexed by its game type id.
func (s *Server) RegisterGame(template gamemodule.GameModule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.Register(template)
}

// Run accepts connections until ctx is cancelled, one goroutine per accepted
// connection.
func (s *Server) Run(ctx context.Context) error {
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				s.logger.Error().
					Msgf("could not accept: %v", err)
				continue
			}

			s.logger.Info().
				Str("remote", conn.RemoteAddr().String()).
				Msg("new connection")

			wg.Add(1)
			go func() {
				defer wg.Done()
				s.handleConn(conn)
			}()
		}
	}()

	<-ctx.Done()
	err := s.listener.Close()
	wg.Wait()
	return err
}

// handleConn is the per-connection loop: read one framed message, dispatch it
// under the lock, write the resulting replies, repeat until disconnect or a
// fatal read error.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	clientID := ""

	for {
		if s.readTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
				break
			}
		}

		frame, err := protocol.ReadClientFrame(reader)
		if err != nil {
			if errors.Is(err, protocol.ErrBodySize) {
				// answer, then drop: the stream cannot be
				// resynchronized past an oversized frame
				s.sendAll([]outbound{{conn, buildReply(protocol.StatusDataIntegrityError, protocol.MsgProtocolError, nil)}})
			}
			if !errors.Is(err, io.EOF) {
				s.logger.Debug().
					Str("remote", conn.RemoteAddr().String()).
					Msgf("read failed: %v", err)
			}
			break
		}

		s.logger.Debug().
			Str("client", clientID).
			Uint32("seq", frame.Seq).
			Str("type", frame.Type.String()).
			Msg("recv")

		disconnect, outs := s.handleFrame(conn, &clientID, frame)
		s.sendAll(outs)
		if disconnect {
			break
		}
	}

	s.disconnectCleanup(clientID)
}

// handleFrame processes one message inside the critical section and returns
// the writes to perform once the lock is released.
func (s *Server) handleFrame(conn net.Conn, clientID *string, frame *protocol.ClientFrame) (bool, []outbound) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Pre-auth: only ConnectRequest is accepted.
	if *clientID == "" {
		if frame.Type != protocol.MsgConnectRequest {
			return false, reply(conn, protocol.StatusNoActiveSession, protocol.MsgConnectResponse, nil)
		}
		return false, s.handleConnect(conn, clientID, frame)
	}

	c := s.clients[*clientID]

	// Sequence gap: enumerate the missing ids and do not advance the
	// expected id.
	if frame.Seq != c.nextMessageID {
		missing := protocol.MissingIDs(c.nextMessageID, frame.Seq)
		return false, jsonReply(conn, protocol.StatusMessageSequenceError, protocol.MsgMissingMessageResponse,
			&protocol.MissingMessageResponse{MissingMessageIDs: missing})
	}

	disconnect := false
	var outs []outbound

	switch frame.Type {
	case protocol.MsgDisconnectRequest:
		outs = reply(conn, protocol.StatusSuccess, protocol.MsgDisconnectResponse, nil)
		disconnect = true
	case protocol.MsgLobbyListRequest:
		outs = s.handleLobbyList(c)
	case protocol.MsgSupportedGamesRequest:
		outs = jsonReply(conn, protocol.StatusSuccess, protocol.MsgSupportedGamesResponse,
			&protocol.SupportedGamesResponse{Games: s.registry.GameTypeIDs()})
	case protocol.MsgCreateLobbyRequest:
		outs = s.handleCreateLobby(c, frame)
	case protocol.MsgJoinLobbyRequest:
		outs = s.handleJoinLobby(c, frame)
	case protocol.MsgLobbyInfoRequest:
		outs = s.handleLobbyInfo(c)
	case protocol.MsgLeaveLobbyRequest:
		outs = s.handleLeaveLobby(c)
	case protocol.MsgStartGameRequest:
		outs = s.handleStartGame(c, frame)
	case protocol.MsgMoveRequest:
		outs = s.handleMove(c, frame)
	case protocol.MsgReturnToLobbyRequest:
		outs = s.handleReturnToLobby(c)
	default:
		outs = reply(conn, protocol.StatusUnsupportedRequestType, protocol.MsgProtocolError, nil)
	}

	c.nextMessageID = protocol.NextSeq(c.nextMessageID)
	return disconnect, outs
}

func (s *Server) handleConnect(conn net.Conn, clientID *string, frame *protocol.ClientFrame) []outbound {
	payload, err := protocol.DecodePayload(frame.Body)
	if err != nil {
		return reply(conn, protocol.StatusForError(err), protocol.MsgProtocolError, nil)
	}
	if !s.auth(payload) {
		return reply(conn, protocol.StatusUnsupportedAuthMethod, protocol.MsgProtocolError, nil)
	}

	id := newID(func(id string) bool {
		_, taken := s.clients[id]
		return taken
	})
	s.clients[id] = &client{
		conn:          conn,
		id:            id,
		nextMessageID: protocol.NextSeq(frame.Seq),
	}
	*clientID = id

	s.logger.Info().
		Str("client", id).
		Msg("client authenticated")

	return jsonReply(conn, protocol.StatusSuccess, protocol.MsgConnectResponse,
		&protocol.ConnectResponse{ClientID: id})
}

func (s *Server) handleLobbyList(c *client) []outbound {
	lobbies := make([]protocol.Lobby, 0, len(s.lobbies))
	for _, lobby := range s.lobbies {
		lobbies = append(lobbies, *lobby.Clone())
	}
	return jsonReply(c.conn, protocol.StatusSuccess, protocol.MsgLobbyListResponse,
		&protocol.LobbyListResponse{Lobbies: lobbies})
}

func (s *Server) handleCreateLobby(c *client, frame *protocol.ClientFrame) []outbound {
	req, err := protocol.DecodeJSON[protocol.CreateLobbyRequest](frame.Body)
	if err != nil {
		return reply(c.conn, protocol.StatusForError(err), protocol.MsgProtocolError, nil)
	}

	template := s.registry.Lookup(req.GameTypeID)
	if template == nil {
		return reply(c.conn, protocol.StatusUnsupportedGame, protocol.MsgProtocolError, nil)
	}
	if c.lobbyID != "" {
		return reply(c.conn, protocol.StatusAlreadyInALobby, protocol.MsgProtocolError, nil)
	}

	id := newID(func(id string) bool {
		_, taken := s.lobbies[id]
		return taken
	})
	lobby := &protocol.Lobby{
		ID:           id,
		Owner:        c.id,
		PlayerIDs:    []string{c.id},
		GameMetadata: *template.Metadata(),
	}
	s.lobbies[id] = lobby
	c.lobbyID = id

	s.logger.Info().
		Str("client", c.id).
		Str("lobby", id).
		Str("game", req.GameTypeID).
		Msg("lobby created")

	return jsonReply(c.conn, protocol.StatusSuccess, protocol.MsgLobbyInfoResponse,
		&protocol.LobbyInfoResponse{Lobby: *lobby.Clone()})
}

func (s *Server) handleJoinLobby(c *client, frame *protocol.ClientFrame) []outbound {
	req, err := protocol.DecodeJSON[protocol.JoinLobbyRequest](frame.Body)
	if err != nil {
		return reply(c.conn, protocol.StatusForError(err), protocol.MsgProtocolError, nil)
	}

	if c.lobbyID != "" {
		return reply(c.conn, protocol.StatusAlreadyInALobby, protocol.MsgProtocolError, nil)
	}
	lobby, ok := s.lobbies[req.LobbyID]
	if !ok {
		return reply(c.conn, protocol.StatusLobbyNotFound, protocol.MsgProtocolError, nil)
	}
	if lobby.IsFull() {
		if lobby.GameStarted {
			return reply(c.conn, protocol.StatusGameStarted, protocol.MsgProtocolError, nil)
		}
		return reply(c.conn, protocol.StatusLobbyFull, protocol.MsgProtocolError, nil)
	}

	lobby.PlayerIDs = append(lobby.PlayerIDs, c.id)
	c.lobbyID = lobby.ID

	// every member, joiner included, gets the fresh snapshot
	return s.broadcastLobbyInfo(lobby)
}

func (s *Server) handleLobbyInfo(c *client) []outbound {
	if c.lobbyID == "" {
		return reply(c.conn, protocol.StatusNotInLobby, protocol.MsgProtocolError, nil)
	}
	lobby := s.lobbies[c.lobbyID]
	return jsonReply(c.conn, protocol.StatusSuccess, protocol.MsgLobbyInfoResponse,
		&protocol.LobbyInfoResponse{Lobby: *lobby.Clone()})
}

func (s *Server) handleLeaveLobby(c *client) []outbound {
	if c.lobbyID == "" {
		// a no-op leave is acknowledged, not treated as a protocol
		// error
		return reply(c.conn, protocol.StatusNotInLobby, protocol.MsgLeaveLobbyResponse, nil)
	}

	outs := s.removeFromLobby(c)
	return append(outs, reply(c.conn, protocol.StatusSuccess, protocol.MsgLeaveLobbyResponse, nil)...)
}

func (s *Server) handleStartGame(c *client, frame *protocol.ClientFrame) []outbound {
	req, err := protocol.DecodeJSON[protocol.StartGameRequest](frame.Body)
	if err != nil {
		return reply(c.conn, protocol.StatusForError(err), protocol.MsgProtocolError, nil)
	}

	if c.lobbyID == "" {
		return reply(c.conn, protocol.StatusNotInLobby, protocol.MsgProtocolError, nil)
	}
	lobby := s.lobbies[c.lobbyID]

	playerReqMet := len(lobby.PlayerIDs) >= lobby.GameMetadata.MinRequiredPlayers &&
		len(lobby.PlayerIDs) <= lobby.GameMetadata.MaxPlayers
	if req.LobbyID != c.lobbyID || lobby.Owner != c.id || !playerReqMet {
		return reply(c.conn, protocol.StatusGameStartCriteriaNotMet, protocol.MsgProtocolError, nil)
	}

	template := s.registry.Lookup(lobby.GameMetadata.GameTypeID())
	if template == nil {
		return reply(c.conn, protocol.StatusUnsupportedGame, protocol.MsgProtocolError, nil)
	}

	session := template.NewSession()
	for _, id := range lobby.PlayerIDs {
		session.AddPlayer(id)
	}
	s.sessions[lobby.ID] = session
	lobby.GameStarted = true

	s.logger.Info().
		Str("lobby", lobby.ID).
		Str("game", lobby.GameMetadata.GameTypeID()).
		Msg("game started")

	return s.broadcastGameState(lobby, session)
}

func (s *Server) handleMove(c *client, frame *protocol.ClientFrame) []outbound {
	if c.lobbyID == "" {
		return reply(c.conn, protocol.StatusNotInLobby, protocol.MsgProtocolError, nil)
	}
	session, ok := s.sessions[c.lobbyID]
	if !ok {
		return reply(c.conn, protocol.StatusGameSessionNotFound, protocol.MsgProtocolError, nil)
	}

	payload, err := protocol.DecodePayload(frame.Body)
	if err != nil {
		return reply(c.conn, protocol.StatusForError(err), protocol.MsgProtocolError, nil)
	}
	gameTypeID, mv, err := gamemodule.UnmarshalMove(s.registry, payload)
	if err != nil || gameTypeID != session.Metadata().GameTypeID() {
		return reply(c.conn, protocol.StatusMalformedBody, protocol.MsgProtocolError, nil)
	}

	if ended, _ := session.EndCondition(); ended {
		return reply(c.conn, protocol.StatusGameOver, protocol.MsgProtocolError, nil)
	}
	if !session.IsValidMove(mv) {
		// requester only; the other players never see a rejected move
		return reply(c.conn, protocol.StatusInvalidMove, protocol.MsgProtocolError, nil)
	}

	session.ApplyMove(mv)
	return s.broadcastGameState(s.lobbies[c.lobbyID], session)
}

func (s *Server) handleReturnToLobby(c *client) []outbound {
	if c.lobbyID == "" {
		return reply(c.conn, protocol.StatusNotInLobby, protocol.MsgProtocolError, nil)
	}
	session, ok := s.sessions[c.lobbyID]
	if !ok {
		return reply(c.conn, protocol.StatusGameSessionNotFound, protocol.MsgProtocolError, nil)
	}

	session.RemovePlayer(c.id)
	if session.PlayerCount() == 0 {
		delete(s.sessions, c.lobbyID)
		s.lobbies[c.lobbyID].GameStarted = false
	}

	lobby := s.lobbies[c.lobbyID]
	return jsonReply(c.conn, protocol.StatusSuccess, protocol.MsgLobbyInfoResponse,
		&protocol.LobbyInfoResponse{Lobby: *lobby.Clone()})
}

// removeFromLobby takes c out of its lobby, transferring ownership or
// deleting the lobby as needed, and returns the lobby-info pushes for the
// remaining members.
func (s *Server) removeFromLobby(c *client) []outbound {
	lobby := s.lobbies[c.lobbyID]
	for i, id := range lobby.PlayerIDs {
		if id == c.id {
			lobby.PlayerIDs = append(lobby.PlayerIDs[:i], lobby.PlayerIDs[i+1:]...)
			break
		}
	}
	c.lobbyID = ""

	if len(lobby.PlayerIDs) == 0 {
		delete(s.lobbies, lobby.ID)
		return nil
	}
	if lobby.Owner == c.id {
		lobby.Owner = lobby.PlayerIDs[0]
	}
	return s.broadcastLobbyInfo(lobby)
}

// disconnectCleanup runs when a connection loop exits for any reason. A
// client that never authenticated left no state behind.
func (s *Server) disconnectCleanup(clientID string) {
	if clientID == "" {
		return
	}

	s.mu.Lock()
	c, ok := s.clients[clientID]
	if !ok {
		s.mu.Unlock()
		return
	}

	var outs []outbound
	if c.lobbyID != "" {
		lobbyID := c.lobbyID

		// a disconnect mid-game counts as leaving the game: drop the
		// session once the last player is gone
		if session, ok := s.sessions[lobbyID]; ok {
			session.RemovePlayer(clientID)
			if session.PlayerCount() == 0 {
				delete(s.sessions, lobbyID)
				if lobby, ok := s.lobbies[lobbyID]; ok {
					lobby.GameStarted = false
				}
			}
		}

		outs = s.removeFromLobby(c)
	}
	delete(s.clients, clientID)
	s.mu.Unlock()

	s.logger.Info().
		Str("client", clientID).
		Msg("client disconnected")

	s.sendAll(outs)
}

// SendUnsolicited pushes a free-form text message to one connected client.
func (s *Server) SendUnsolicited(clientID, message string) error {
	s.mu.Lock()
	c, ok := s.clients[clientID]
	var outs []outbound
	if ok {
		outs = jsonReply(c.conn, protocol.StatusSuccess, protocol.MsgUnsolicitedMessage,
			&protocol.UnsolicitedMessage{Message: message})
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("no such client: %q", clientID)
	}
	return s.sendAll(outs)
}

func (s *Server) broadcastLobbyInfo(lobby *protocol.Lobby) []outbound {
	var outs []outbound
	for _, id := range lobby.PlayerIDs {
		member, ok := s.clients[id]
		if !ok {
			continue
		}
		outs = append(outs, jsonReply(member.conn, protocol.StatusSuccess, protocol.MsgLobbyInfoResponse,
			&protocol.LobbyInfoResponse{Lobby: *lobby.Clone()})...)
	}
	return outs
}

func (s *Server) broadcastGameState(lobby *protocol.Lobby, session gamemodule.GameModule) []outbound {
	payload, err := gamemodule.MarshalState(session)
	if err != nil {
		s.logger.Error().
			Str("lobby", lobby.ID).
			Msgf("could not marshal game state: %v", err)
		return nil
	}

	data := buildReply(protocol.StatusSuccess, protocol.MsgGameStateResponse, payload)
	var outs []outbound
	for _, id := range lobby.PlayerIDs {
		member, ok := s.clients[id]
		if !ok {
			continue
		}
		outs = append(outs, outbound{member.conn, data})
	}
	return outs
}

// sendAll performs the queued writes, aggregating per-recipient failures. A
// failed write is logged, not fatal: the failing peer's own read loop will
// notice the dead socket and clean up.
func (s *Server) sendAll(outs []outbound) error {
	var errs error
	for _, out := range outs {
		if _, err := out.conn.Write(out.data); err != nil {
			s.logger.Error().
				Str("remote", out.conn.RemoteAddr().String()).
				Msgf("could not send: %v", err)

			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

func buildReply(status protocol.StatusCode, msgType protocol.MessageType, payload []byte) []byte {
	return append(protocol.EncodeServerHeader(status, msgType), protocol.EncodeBody(payload)...)
}

func reply(conn net.Conn, status protocol.StatusCode, msgType protocol.MessageType, payload []byte) []outbound {
	return []outbound{{conn, buildReply(status, msgType, payload)}}
}

func jsonReply(conn net.Conn, status protocol.StatusCode, msgType protocol.MessageType, v any) []outbound {
	payload, err := json.Marshal(v)
	if err != nil {
		return reply(conn, protocol.StatusUnexpectedError, protocol.MsgProtocolError, nil)
	}
	return reply(conn, status, msgType, payload)
}

// newID generates a collision-free id, regenerating until taken reports
// false.
func newID(taken func(string) bool) string {
	for {
		id := uuid.NewString()
		if !taken(id) {
			return id
		}
	}
}

// Package gameclient is the per-connection session handler driving requests
// against a game server and maintaining an eventually consistent local view
// of the session: lobby snapshot, lobby list, and the game in progress.
package gameclient

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/phuslu/log"

	"github.com/WillBeesOn/game-client-server/internal/gamemodule"
	"github.com/WillBeesOn/game-client-server/internal/protocol"
)

var ErrNotConnected = errors.New("not connected")

// SupportedGame is one game both peers support: its display title and the
// game type id used on the wire.
type SupportedGame struct {
	Title      string
	GameTypeID string
}

type Client struct {
	logger *log.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	protocolState         ProtocolState
	previousProtocolState ProtocolState
	nextMessageNum        uint32
	clientID              string

	currentLobby *protocol.Lobby
	lobbies      []protocol.Lobby

	registry      *gamemodule.Registry
	matchingGames []SupportedGame

	gameInProgress gamemodule.GameModule

	listeningAsync bool

	lastError       protocol.StatusCode
	lastUnsolicited string

	// notify carries one token per processed inbound message; the
	// presentation layer subscribes to it to repaint.
	notify chan struct{}
}

func NewClient(logger *log.Logger) *Client {
	// if logger is nil (which might be true in tests) => use default, but
	// silenced logger
	if logger == nil {
		tmp := log.DefaultLogger
		logger = &tmp
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}

	return &Client{
		logger: logger,

		protocolState:         StateClosed,
		previousProtocolState: StateClosed,

		registry: gamemodule.NewRegistry(),
		notify:   make(chan struct{}, 1),
	}
}

// RegisterGame registers a game module template this client can play.
func (c *Client) RegisterGame(template gamemodule.GameModule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry.Register(template)
}

// Notify returns the repaint channel. One token is published (without
// blocking) after every successfully processed inbound message.
func (c *Client) Notify() <-chan struct{} {
	return c.notify
}

func (c *Client) ProtocolState() ProtocolState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocolState
}

func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

func (c *Client) CurrentLobby() *protocol.Lobby {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentLobby == nil {
		return nil
	}
	return c.currentLobby.Clone()
}

func (c *Client) LobbyList() []protocol.Lobby {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Lobby(nil), c.lobbies...)
}

// SupportedGames returns the games supported by both this client and the
// server, as reported by the last SupportedGamesResponse.
func (c *Client) SupportedGames() []SupportedGame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SupportedGame(nil), c.matchingGames...)
}

// GameState returns a copy of the current game's state, or nil when no game
// is in progress.
func (c *Client) GameState() gamemodule.GameState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gameInProgress == nil {
		return nil
	}
	return c.gameInProgress.State().Clone()
}

// GameEndResult reports whether the current game has ended and the winner's
// id; ok is false when no game is in progress.
func (c *Client) GameEndResult() (ended bool, winner string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gameInProgress == nil {
		return false, "", false
	}
	ended, winner = c.gameInProgress.EndCondition()
	return ended, winner, true
}

// LastError returns the status code of the most recent ProtocolError reply.
func (c *Client) LastError() protocol.StatusCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// LastUnsolicited returns the most recent server-pushed text message.
func (c *Client) LastUnsolicited() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUnsolicited
}

// Connect dials the server and performs the ConnectRequest handshake. The
// handshake response is read synchronously; switch to StartListening
// afterwards for pushes.
func (c *Client) Connect(network, address string) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.previousProtocolState = c.protocolState
	c.protocolState = StateAuthenticating

	conn, err := net.Dial(network, address)
	if err != nil {
		c.protocolState = StateClosed
		c.mu.Unlock()
		return fmt.Errorf("could not dial: %w", err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.mu.Unlock()

	return c.request(protocol.MsgConnectRequest, nil, stateKeep)
}

// Disconnect asks the server to end the session. Local state resets when the
// DisconnectResponse arrives.
func (c *Client) Disconnect() error {
	return c.request(protocol.MsgDisconnectRequest, nil, StateClosingConnection)
}

func (c *Client) RequestLobbyList() error {
	return c.request(protocol.MsgLobbyListRequest, nil, StateGettingLobbies)
}

func (c *Client) RequestSupportedGames() error {
	return c.request(protocol.MsgSupportedGamesRequest, nil, StateGettingSupportedGames)
}

// RefreshCurrentLobby re-fetches the lobby snapshot from the server.
func (c *Client) RefreshCurrentLobby() error {
	return c.request(protocol.MsgLobbyInfoRequest, nil, StateGettingLobbyInfo)
}

func (c *Client) CreateLobby(gameTypeID string) error {
	payload, err := jsonPayload(&protocol.CreateLobbyRequest{GameTypeID: gameTypeID})
	if err != nil {
		return err
	}
	return c.request(protocol.MsgCreateLobbyRequest, payload, StateCreatingLobby)
}

func (c *Client) JoinLobby(lobbyID string) error {
	payload, err := jsonPayload(&protocol.JoinLobbyRequest{LobbyID: lobbyID})
	if err != nil {
		return err
	}
	return c.request(protocol.MsgJoinLobbyRequest, payload, StateJoiningLobby)
}

func (c *Client) LeaveLobby() error {
	return c.request(protocol.MsgLeaveLobbyRequest, nil, StateLeavingLobby)
}

func (c *Client) StartGame(lobbyID string) error {
	payload, err := jsonPayload(&protocol.StartGameRequest{LobbyID: lobbyID})
	if err != nil {
		return err
	}
	return c.request(protocol.MsgStartGameRequest, payload, StateCreatingGameSession)
}

// MakeMove submits a move for the game in progress.
func (c *Client) MakeMove(mv gamemodule.GameMove) error {
	c.mu.Lock()
	if c.gameInProgress == nil {
		c.mu.Unlock()
		return fmt.Errorf("no game in progress")
	}
	gameTypeID := c.gameInProgress.Metadata().GameTypeID()
	c.mu.Unlock()

	payload, err := gamemodule.MarshalMove(gameTypeID, mv)
	if err != nil {
		return fmt.Errorf("could not marshal move: %w", err)
	}
	return c.request(protocol.MsgMoveRequest, payload, stateKeep)
}

func (c *Client) ReturnToLobby() error {
	return c.request(protocol.MsgReturnToLobbyRequest, nil, stateKeep)
}

// request sends one framed request. Every public operation funnels through
// here: record the previous state, set the pending one, assign the sequence
// number, write, and in synchronous mode perform exactly one blocking read
// before returning.
func (c *Client) request(msgType protocol.MessageType, payload []byte, pending ProtocolState) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if pending != stateKeep {
		c.previousProtocolState = c.protocolState
		c.protocolState = pending
	}
	seq := c.nextMessageNum
	c.nextMessageNum = protocol.NextSeq(seq)
	conn := c.conn
	async := c.listeningAsync
	c.mu.Unlock()

	c.logger.Debug().
		Uint32("seq", seq).
		Str("type", msgType.String()).
		Msg("send")

	data := append(protocol.EncodeClientHeader(seq, msgType), protocol.EncodeBody(payload)...)
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("could not write: %w", err)
	}

	if !async {
		return c.listenOnce()
	}
	return nil
}

// StartListening moves the client to asynchronous listen mode: a dedicated
// goroutine performs blocking reads until StopListening or a transport error.
func (c *Client) StartListening() {
	c.mu.Lock()
	if c.listeningAsync {
		c.mu.Unlock()
		return
	}
	c.listeningAsync = true
	c.mu.Unlock()

	go func() {
		for {
			c.mu.Lock()
			listening := c.listeningAsync
			c.mu.Unlock()
			if !listening {
				return
			}
			if err := c.listenOnce(); err != nil {
				c.mu.Lock()
				c.listeningAsync = false
				c.mu.Unlock()
				return
			}
		}
	}()
}

// StopListening flips the async flag. Stopping is cooperative: a read already
// in flight is not interrupted, so latency equals time-to-next-message.
func (c *Client) StopListening() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeningAsync = false
}

// listenOnce performs one blocking read and dispatches the decoded message.
func (c *Client) listenOnce() error {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()
	if reader == nil {
		return ErrNotConnected
	}

	frame, err := protocol.ReadServerFrame(reader)
	if err != nil {
		c.mu.Lock()
		// socket is gone; silently revert to Closed
		if c.conn != nil && c.protocolState != StateClosed {
			c.logger.Debug().
				Msgf("read failed: %v", err)
		}
		c.resetLocked()
		c.mu.Unlock()
		return err
	}

	c.handleMessage(frame)
	return nil
}

func (c *Client) handleMessage(frame *protocol.ServerFrame) {
	c.logger.Debug().
		Str("status", frame.Status.String()).
		Str("type", frame.Type.String()).
		Msg("recv")

	c.mu.Lock()

	switch frame.Type {
	case protocol.MsgConnectResponse:
		// only honored on success; NoActiveSession replies share this
		// type and carry nothing to store
		if frame.Status == protocol.StatusSuccess {
			if resp, err := protocol.DecodeJSON[protocol.ConnectResponse](frame.Body); err == nil {
				c.clientID = resp.ClientID
				c.protocolState = StateIdle
			}
		}

	case protocol.MsgDisconnectResponse:
		if frame.Status == protocol.StatusSuccess {
			c.resetLocked()
		}

	case protocol.MsgLobbyListResponse:
		if frame.Status == protocol.StatusSuccess {
			if resp, err := protocol.DecodeJSON[protocol.LobbyListResponse](frame.Body); err == nil {
				c.lobbies = resp.Lobbies
				c.protocolState = StateIdle
			}
		}

	case protocol.MsgSupportedGamesResponse:
		if frame.Status == protocol.StatusSuccess {
			if resp, err := protocol.DecodeJSON[protocol.SupportedGamesResponse](frame.Body); err == nil {
				// keep only the games this client also has a
				// module for
				matching := []SupportedGame{}
				for _, id := range resp.Games {
					if template := c.registry.Lookup(id); template != nil {
						matching = append(matching, SupportedGame{
							Title:      template.Metadata().GameTitle,
							GameTypeID: id,
						})
					}
				}
				c.matchingGames = matching
				c.protocolState = StateIdle
			}
		}

	case protocol.MsgLobbyInfoResponse:
		if frame.Status == protocol.StatusSuccess {
			if resp, err := protocol.DecodeJSON[protocol.LobbyInfoResponse](frame.Body); err == nil {
				lobby := resp.Lobby
				c.currentLobby = &lobby
				c.protocolState = StateInLobby
			}
		}

	case protocol.MsgLeaveLobbyResponse:
		// NotInLobby is the acknowledged no-op variant
		if frame.Status == protocol.StatusSuccess || frame.Status == protocol.StatusNotInLobby {
			c.currentLobby = nil
			c.gameInProgress = nil
			c.protocolState = StateIdle
		}

	case protocol.MsgGameStateResponse:
		c.handleGameStateLocked(frame)

	case protocol.MsgProtocolError:
		c.lastError = frame.Status
		c.protocolState = c.previousProtocolState

	case protocol.MsgMissingMessageResponse:
		if resp, err := protocol.DecodeJSON[protocol.MissingMessageResponse](frame.Body); err == nil {
			c.logger.Warn().
				Msgf("server reported %d missing messages", len(resp.MissingMessageIDs))
		}

	case protocol.MsgUnsolicitedMessage:
		if resp, err := protocol.DecodeJSON[protocol.UnsolicitedMessage](frame.Body); err == nil {
			c.lastUnsolicited = resp.Message
		}

	default:
		// unsupported on the client side, ignore
	}

	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// handleGameStateLocked adopts a brand-new game session on the first state
// push and updates the existing one on every push after that.
func (c *Client) handleGameStateLocked(frame *protocol.ServerFrame) {
	if frame.Status != protocol.StatusSuccess {
		return
	}
	payload, err := protocol.DecodePayload(frame.Body)
	if err != nil {
		c.logger.Error().
			Msgf("bad game state payload: %v", err)
		return
	}
	gameTypeID, state, err := gamemodule.UnmarshalState(c.registry, payload)
	if err != nil {
		c.logger.Error().
			Msgf("could not decode game state: %v", err)
		return
	}

	entering := c.protocolState == StateCreatingGameSession || c.protocolState == StateInLobby
	if entering || c.gameInProgress == nil {
		session := c.registry.Lookup(gameTypeID).NewSession()
		if err := session.SetState(state); err != nil {
			c.logger.Error().
				Msgf("could not adopt game state: %v", err)
			return
		}
		c.gameInProgress = session
		c.protocolState = StateGameRunning
		return
	}

	if err := c.gameInProgress.SetState(state); err != nil {
		c.logger.Error().
			Msgf("could not update game state: %v", err)
	}
}

// resetLocked returns every piece of session state to its initial value.
// Callers hold c.mu.
func (c *Client) resetLocked() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
	c.protocolState = StateClosed
	c.previousProtocolState = StateClosed
	c.nextMessageNum = 0
	c.clientID = ""
	c.currentLobby = nil
	c.lobbies = nil
	c.matchingGames = nil
	c.gameInProgress = nil
	c.listeningAsync = false
}

func jsonPayload(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %w", err)
	}
	return data, nil
}

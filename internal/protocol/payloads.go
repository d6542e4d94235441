package protocol

import (
	"github.com/WillBeesOn/game-client-server/internal/gamemodule"
)

// JSON payload shapes shared by both peers.

// Lobby is a pre-game grouping of clients intending to play one game session
// together. The server owns the canonical copy; clients hold eventually
// consistent snapshots of it.
type Lobby struct {
	ID           string                  `json:"id"`
	Owner        string                  `json:"owner"`
	PlayerIDs    []string                `json:"player_ids"`
	GameStarted  bool                    `json:"game_started"`
	GameMetadata gamemodule.GameMetadata `json:"game_metadata"`
}

func (l *Lobby) IsFull() bool {
	return len(l.PlayerIDs) >= l.GameMetadata.MaxPlayers
}

// Clone returns a deep copy, so a snapshot handed out does not alias the
// canonical player list.
func (l *Lobby) Clone() *Lobby {
	out := *l
	out.PlayerIDs = append([]string(nil), l.PlayerIDs...)
	return &out
}

type ConnectResponse struct {
	ClientID string `json:"client_id"`
}

type JoinLobbyRequest struct {
	LobbyID string `json:"lobby_id"`
}

type CreateLobbyRequest struct {
	GameTypeID string `json:"game_type_id"`
}

type StartGameRequest struct {
	LobbyID string `json:"lobby_id"`
}

type LobbyInfoResponse struct {
	Lobby Lobby `json:"lobby"`
}

type LobbyListResponse struct {
	Lobbies []Lobby `json:"lobbies"`
}

type SupportedGamesResponse struct {
	Games []string `json:"games"`
}

type MissingMessageResponse struct {
	MissingMessageIDs []uint32 `json:"missing_message_ids"`
}

type UnsolicitedMessage struct {
	Message string `json:"message"`
}

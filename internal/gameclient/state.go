package gameclient

// ProtocolState is the client-observed connection state. Requests set a
// pending state before sending; the server's success reply settles it and a
// ProtocolError reply reverts it to the previously recorded state.
type ProtocolState int

const (
	StateClosed ProtocolState = iota
	StateAuthenticating
	StateIdle
	StateClosingConnection
	StateGettingLobbies
	StateGettingSupportedGames
	StateCreatingLobby
	StateJoiningLobby
	StateInLobby
	StateLeavingLobby
	StateGettingLobbyInfo
	StateCreatingGameSession
	StateGameRunning
	StateGettingGameState
	StateLeavingGameSession

	// stateKeep marks requests that do not move the state machine.
	stateKeep ProtocolState = -1
)

var protocolStateNames = [...]string{
	"Closed",
	"Authenticating",
	"Idle",
	"ClosingConnection",
	"GettingLobbies",
	"GettingSupportedGames",
	"CreatingLobby",
	"JoiningLobby",
	"InLobby",
	"LeavingLobby",
	"GettingLobbyInfo",
	"CreatingGameSession",
	"GameRunning",
	"GettingGameState",
	"LeavingGameSession",
}

func (s ProtocolState) String() string {
	if s < 0 || int(s) >= len(protocolStateNames) {
		return "Unknown"
	}
	return protocolStateNames[s]
}

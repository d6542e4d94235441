package protocol

// Wire code tables. One table, shared by both peers: the u16 values below are
// published protocol constants and must never be reordered.

type MessageType uint16

const (
	MsgUnsupported MessageType = iota
	MsgProtocolError
	MsgConnectRequest
	MsgConnectResponse
	MsgDisconnectRequest
	MsgDisconnectResponse
	MsgSupportedGamesRequest
	MsgSupportedGamesResponse
	MsgLobbyListRequest
	MsgLobbyListResponse
	MsgCreateLobbyRequest
	MsgJoinLobbyRequest
	MsgReturnToLobbyRequest
	MsgLobbyInfoRequest
	MsgLobbyInfoResponse
	MsgLeaveLobbyRequest
	MsgLeaveLobbyResponse
	MsgStartGameRequest
	MsgMoveRequest
	MsgGameStateResponse
	MsgMissingMessageResponse
	MsgUnsolicitedMessage

	msgMax
)

var messageTypeNames = [...]string{
	"Unsupported",
	"ProtocolError",
	"ConnectRequest",
	"ConnectResponse",
	"DisconnectRequest",
	"DisconnectResponse",
	"SupportedGamesRequest",
	"SupportedGamesResponse",
	"LobbyListRequest",
	"LobbyListResponse",
	"CreateLobbyRequest",
	"JoinLobbyRequest",
	"ReturnToLobbyRequest",
	"LobbyInfoRequest",
	"LobbyInfoResponse",
	"LeaveLobbyRequest",
	"LeaveLobbyResponse",
	"StartGameRequest",
	"MoveRequest",
	"GameStateResponse",
	"MissingMessageResponse",
	"UnsolicitedMessage",
}

func (t MessageType) String() string {
	if t >= msgMax {
		return messageTypeNames[MsgUnsupported]
	}
	return messageTypeNames[t]
}

// MessageTypeFromWire maps a u16 wire value to a MessageType. Unknown values
// decode to MsgUnsupported, never an error: the protocol stays
// forward-compatible with unknown peers.
func MessageTypeFromWire(v uint16) MessageType {
	if MessageType(v) >= msgMax {
		return MsgUnsupported
	}
	return MessageType(v)
}

type StatusCode uint16

const (
	StatusUnexpectedError StatusCode = iota
	StatusSuccess
	StatusDataParseError
	StatusDataIntegrityError
	StatusMessageSequenceError
	StatusMalformedBody
	StatusUnsupportedRequestType
	StatusUnsupportedAuthMethod
	StatusUnsupportedGame
	StatusNoActiveSession
	StatusLobbyFull
	StatusAlreadyInALobby
	StatusGameStarted
	StatusNotInLobby
	StatusGameSessionNotFound
	StatusLobbyNotFound
	StatusGameStartCriteriaNotMet
	StatusGameOver
	StatusInvalidMove

	statusMax
)

var statusCodeNames = [...]string{
	"UnexpectedError",
	"Success",
	"DataParseError",
	"DataIntegrityError",
	"MessageSequenceError",
	"MalformedBody",
	"UnsupportedRequestType",
	"UnsupportedAuthMethod",
	"UnsupportedGame",
	"NoActiveSession",
	"LobbyFull",
	"AlreadyInALobby",
	"GameStarted",
	"NotInLobby",
	"GameSessionNotFound",
	"LobbyNotFound",
	"GameStartCriteriaNotMet",
	"GameOver",
	"InvalidMove",
}

func (s StatusCode) String() string {
	if s >= statusMax {
		return statusCodeNames[StatusUnexpectedError]
	}
	return statusCodeNames[s]
}

// StatusCodeFromWire maps a u16 wire value to a StatusCode. Unknown values
// decode to StatusUnexpectedError, never an error.
func StatusCodeFromWire(v uint16) StatusCode {
	if StatusCode(v) >= statusMax {
		return StatusUnexpectedError
	}
	return StatusCode(v)
}

// Package gamemodule defines the capability contract a pluggable game must
// satisfy to be hosted by the protocol core. The core never interprets game
// semantics; it only moves GameState and GameMove values around through this
// interface.
package gamemodule

import "fmt"

// GameState is the full state of one game session. Concrete games ship their
// own implementation; the core only ever copies it and round-trips it through
// JSON.
type GameState interface {
	Clone() GameState
}

// GameMove is one player action. Same deal as GameState.
type GameMove interface {
	Clone() GameMove
}

// GameModule is one hosted game. A registered template instance is shared and
// must not be mutated; NewSession is the factory producing a fresh mutable
// instance per game session.
type GameModule interface {
	// Metadata returns the game's immutable metadata.
	Metadata() *GameMetadata

	// NewSession returns a fresh instance of this module with no players
	// and an initial state.
	NewSession() GameModule

	// AddPlayer adds a player id to the roster. Reports whether the
	// roster changed (false when full or already present).
	AddPlayer(id string) bool

	// RemovePlayer removes a player id from the roster. Reports whether
	// the roster changed.
	RemovePlayer(id string) bool

	// PlayerCount returns the current roster size.
	PlayerCount() int

	// State returns the current game state. Callers must not mutate it.
	State() GameState

	// SetState replaces the internal state with an externally supplied
	// one. Returns an error when the concrete type does not belong to
	// this game.
	SetState(state GameState) error

	// EndCondition reports whether the game has reached a terminal state
	// and, when a game has a winner, that player's id ("" otherwise).
	EndCondition() (ended bool, winner string)

	// IsValidMove tests a candidate move against the current state
	// without mutating anything.
	IsValidMove(mv GameMove) bool

	// ApplyMove applies an already-validated move. Implementations must
	// re-validate: applying an invalid move is a no-op, not an error.
	ApplyMove(mv GameMove)

	// UnmarshalState decodes this game's concrete state type from JSON.
	UnmarshalState(data []byte) (GameState, error)

	// UnmarshalMove decodes this game's concrete move type from JSON.
	UnmarshalMove(data []byte) (GameMove, error)
}

// GameMetadata describes a game module. Immutable once constructed.
type GameMetadata struct {
	GameTitle          string `json:"game_title"`
	Version            string `json:"version"`
	MaxPlayers         int    `json:"max_players"`
	MinRequiredPlayers int    `json:"min_required_players"`
}

// GameTypeID is the canonical key matching client/server game support and
// selecting the module factory. Title plus version is enough.
func (m *GameMetadata) GameTypeID() string {
	return fmt.Sprintf("%s v%s", m.GameTitle, m.Version)
}

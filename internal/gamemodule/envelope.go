package gamemodule

import (
	"encoding/json"
	"fmt"
)

// State and move payloads are polymorphic: one concrete type per game. On the
// wire they travel inside a tagged envelope whose discriminant is the game
// type id. The tag is validated against the registry at decode; an unknown or
// mismatched tag is a decode error, never a panic.

type StateEnvelope struct {
	GameTypeID string          `json:"game_type_id"`
	State      json.RawMessage `json:"state"`
}

type MoveEnvelope struct {
	GameTypeID string          `json:"game_type_id"`
	Move       json.RawMessage `json:"move"`
}

// MarshalState wraps a game's state into a tagged envelope.
func MarshalState(game GameModule) ([]byte, error) {
	stateBytes, err := json.Marshal(game.State())
	if err != nil {
		return nil, fmt.Errorf("could not marshal state: %w", err)
	}
	return json.Marshal(&StateEnvelope{
		GameTypeID: game.Metadata().GameTypeID(),
		State:      stateBytes,
	})
}

// MarshalMove wraps a move into a tagged envelope for gameTypeID.
func MarshalMove(gameTypeID string, mv GameMove) ([]byte, error) {
	moveBytes, err := json.Marshal(mv)
	if err != nil {
		return nil, fmt.Errorf("could not marshal move: %w", err)
	}
	return json.Marshal(&MoveEnvelope{
		GameTypeID: gameTypeID,
		Move:       moveBytes,
	})
}

// UnmarshalState decodes a tagged state envelope, resolving the concrete type
// through the registry.
func UnmarshalState(r *Registry, data []byte) (string, GameState, error) {
	env := StateEnvelope{}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("could not unmarshal state envelope: %w", err)
	}
	template := r.Lookup(env.GameTypeID)
	if template == nil {
		return "", nil, fmt.Errorf("unknown game type id: %q", env.GameTypeID)
	}
	state, err := template.UnmarshalState(env.State)
	if err != nil {
		return "", nil, fmt.Errorf("could not unmarshal %q state: %w", env.GameTypeID, err)
	}
	return env.GameTypeID, state, nil
}

// UnmarshalMove decodes a tagged move envelope, resolving the concrete type
// through the registry.
func UnmarshalMove(r *Registry, data []byte) (string, GameMove, error) {
	env := MoveEnvelope{}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("could not unmarshal move envelope: %w", err)
	}
	template := r.Lookup(env.GameTypeID)
	if template == nil {
		return "", nil, fmt.Errorf("unknown game type id: %q", env.GameTypeID)
	}
	mv, err := template.UnmarshalMove(env.Move)
	if err != nil {
		return "", nil, fmt.Errorf("could not unmarshal %q move: %w", env.GameTypeID, err)
	}
	return env.GameTypeID, mv, nil
}

// Package tictactoe is the example game module: a complete GameModule
// implementation the protocol core can host without knowing its rules.
package tictactoe

import (
	"encoding/json"
	"fmt"

	"github.com/WillBeesOn/game-client-server/internal/gamemodule"
)

const (
	MarkX = "X"
	MarkO = "O"

	boardSize = 3
)

// State is the full tic-tac-toe board state. An empty string is an empty
// cell. The first player added is X and moves first.
type State struct {
	Board    [boardSize][boardSize]string `json:"board"`
	ThisTurn string                       `json:"this_turn"`
	XPlayer  string                       `json:"x_player"`
	OPlayer  string                       `json:"o_player"`
}

func (s *State) Clone() gamemodule.GameState {
	out := *s
	return &out
}

// Move places the mark of PlayerID at (Row, Col).
type Move struct {
	PlayerID string `json:"player_id"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
}

func (m *Move) Clone() gamemodule.GameMove {
	out := *m
	return &out
}

type Module struct {
	metadata gamemodule.GameMetadata
	players  []string
	state    State
}

var _ gamemodule.GameModule = (*Module)(nil)

func New() *Module {
	return &Module{
		metadata: gamemodule.GameMetadata{
			GameTitle:          "Tic-tac-toe",
			Version:            "1.0",
			MaxPlayers:         2,
			MinRequiredPlayers: 2,
		},
		state: State{ThisTurn: MarkX},
	}
}

func (m *Module) Metadata() *gamemodule.GameMetadata {
	return &m.metadata
}

func (m *Module) NewSession() gamemodule.GameModule {
	return New()
}

func (m *Module) AddPlayer(id string) bool {
	if len(m.players) >= m.metadata.MaxPlayers {
		return false
	}
	for _, p := range m.players {
		if p == id {
			return false
		}
	}
	m.players = append(m.players, id)
	// mark assignment follows join order: first X, second O
	if m.state.XPlayer == "" {
		m.state.XPlayer = id
	} else if m.state.OPlayer == "" {
		m.state.OPlayer = id
	}
	return true
}

func (m *Module) RemovePlayer(id string) bool {
	for i, p := range m.players {
		if p == id {
			m.players = append(m.players[:i], m.players[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Module) PlayerCount() int {
	return len(m.players)
}

func (m *Module) State() gamemodule.GameState {
	return &m.state
}

func (m *Module) SetState(state gamemodule.GameState) error {
	s, ok := state.(*State)
	if !ok {
		return fmt.Errorf("expected *tictactoe.State, got %T", state)
	}
	m.state = *s
	return nil
}

// markOf returns the mark id plays as, or "" for an unknown player.
func (m *Module) markOf(id string) string {
	switch id {
	case m.state.XPlayer:
		return MarkX
	case m.state.OPlayer:
		return MarkO
	default:
		return ""
	}
}

// playerOf is the inverse of markOf.
func (m *Module) playerOf(mark string) string {
	switch mark {
	case MarkX:
		return m.state.XPlayer
	case MarkO:
		return m.state.OPlayer
	default:
		return ""
	}
}

var lines = [...][3][2]int{
	// rows
	{{0, 0}, {0, 1}, {0, 2}},
	{{1, 0}, {1, 1}, {1, 2}},
	{{2, 0}, {2, 1}, {2, 2}},
	// columns
	{{0, 0}, {1, 0}, {2, 0}},
	{{0, 1}, {1, 1}, {2, 1}},
	{{0, 2}, {1, 2}, {2, 2}},
	// diagonals
	{{0, 0}, {1, 1}, {2, 2}},
	{{0, 2}, {1, 1}, {2, 0}},
}

func (m *Module) EndCondition() (bool, string) {
	for _, line := range lines {
		a := m.state.Board[line[0][0]][line[0][1]]
		b := m.state.Board[line[1][0]][line[1][1]]
		c := m.state.Board[line[2][0]][line[2][1]]
		if a != "" && a == b && b == c {
			return true, m.playerOf(a)
		}
	}
	for _, row := range m.state.Board {
		for _, cell := range row {
			if cell == "" {
				return false, ""
			}
		}
	}
	// full board, no line: draw
	return true, ""
}

func (m *Module) IsValidMove(mv gamemodule.GameMove) bool {
	move, ok := mv.(*Move)
	if !ok {
		return false
	}
	if ended, _ := m.EndCondition(); ended {
		return false
	}
	if move.Row < 0 || move.Row >= boardSize || move.Col < 0 || move.Col >= boardSize {
		return false
	}
	mark := m.markOf(move.PlayerID)
	if mark == "" || mark != m.state.ThisTurn {
		return false
	}
	return m.state.Board[move.Row][move.Col] == ""
}

func (m *Module) ApplyMove(mv gamemodule.GameMove) {
	if !m.IsValidMove(mv) {
		return
	}
	move := mv.(*Move)
	m.state.Board[move.Row][move.Col] = m.state.ThisTurn
	if m.state.ThisTurn == MarkX {
		m.state.ThisTurn = MarkO
	} else {
		m.state.ThisTurn = MarkX
	}
}

func (m *Module) UnmarshalState(data []byte) (gamemodule.GameState, error) {
	state := State{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (m *Module) UnmarshalMove(data []byte) (gamemodule.GameMove, error) {
	move := Move{}
	if err := json.Unmarshal(data, &move); err != nil {
		return nil, err
	}
	return &move, nil
}

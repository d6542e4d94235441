package tictactoe_test

import (
	"testing"

	"github.com/matryer/is"

	"github.com/WillBeesOn/game-client-server/internal/tictactoe"
)

func newGame(t *testing.T) *tictactoe.Module {
	t.Helper()

	game := tictactoe.New()
	game.AddPlayer("alice")
	game.AddPlayer("bob")
	return game
}

func TestMetadata(t *testing.T) {
	is := is.New(t)

	meta := tictactoe.New().Metadata()
	is.Equal(meta.GameTypeID(), "Tic-tac-toe v1.0")
	is.Equal(meta.MaxPlayers, 2)
	is.Equal(meta.MinRequiredPlayers, 2)
}

func TestRoster(t *testing.T) {
	is := is.New(t)

	game := tictactoe.New()
	is.True(game.AddPlayer("alice"))
	is.True(!game.AddPlayer("alice")) // duplicate
	is.True(game.AddPlayer("bob"))
	is.True(!game.AddPlayer("carol")) // full
	is.Equal(game.PlayerCount(), 2)

	is.True(game.RemovePlayer("alice"))
	is.True(!game.RemovePlayer("alice"))
	is.Equal(game.PlayerCount(), 1)
}

func TestMarkAssignmentFollowsJoinOrder(t *testing.T) {
	is := is.New(t)

	game := newGame(t)
	state := game.State().(*tictactoe.State)
	is.Equal(state.XPlayer, "alice")
	is.Equal(state.OPlayer, "bob")
	is.Equal(state.ThisTurn, tictactoe.MarkX)
}

func TestMoveValidation(t *testing.T) {
	is := is.New(t)

	game := newGame(t)

	is.True(game.IsValidMove(&tictactoe.Move{PlayerID: "alice", Row: 1, Col: 1}))
	// not bob's turn
	is.True(!game.IsValidMove(&tictactoe.Move{PlayerID: "bob", Row: 1, Col: 1}))
	// unknown player
	is.True(!game.IsValidMove(&tictactoe.Move{PlayerID: "carol", Row: 1, Col: 1}))
	// out of range
	is.True(!game.IsValidMove(&tictactoe.Move{PlayerID: "alice", Row: 3, Col: 0}))
	is.True(!game.IsValidMove(&tictactoe.Move{PlayerID: "alice", Row: 0, Col: -1}))

	game.ApplyMove(&tictactoe.Move{PlayerID: "alice", Row: 1, Col: 1})
	// occupied cell
	is.True(!game.IsValidMove(&tictactoe.Move{PlayerID: "bob", Row: 1, Col: 1}))
}

func TestApplyMoveTogglesTurn(t *testing.T) {
	is := is.New(t)

	game := newGame(t)
	game.ApplyMove(&tictactoe.Move{PlayerID: "alice", Row: 1, Col: 1})

	state := game.State().(*tictactoe.State)
	is.Equal(state.Board[1][1], tictactoe.MarkX)
	is.Equal(state.ThisTurn, tictactoe.MarkO)
}

func TestApplyInvalidMoveIsNoOp(t *testing.T) {
	is := is.New(t)

	game := newGame(t)
	before := *game.State().(*tictactoe.State)

	game.ApplyMove(&tictactoe.Move{PlayerID: "bob", Row: 0, Col: 0})  // not bob's turn
	game.ApplyMove(&tictactoe.Move{PlayerID: "alice", Row: 9, Col: 9}) // out of range

	is.Equal(*game.State().(*tictactoe.State), before)
}

func TestEndCondition(t *testing.T) {
	type tc struct {
		name   string
		cells  [][2]int // alternating alice (X) then bob (O)
		ended  bool
		winner string
	}
	tests := []tc{
		{
			name:  "in progress",
			cells: [][2]int{{1, 1}, {0, 0}},
			ended: false,
		},
		{
			name:   "row win",
			cells:  [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0, 2}},
			ended:  true,
			winner: "alice",
		},
		{
			name:   "column win",
			cells:  [][2]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}, {2, 2}, {2, 1}},
			ended:  true,
			winner: "bob",
		},
		{
			name:   "diagonal win",
			cells:  [][2]int{{0, 0}, {0, 1}, {1, 1}, {0, 2}, {2, 2}},
			ended:  true,
			winner: "alice",
		},
		{
			name:   "anti-diagonal win",
			cells:  [][2]int{{0, 2}, {0, 0}, {1, 1}, {0, 1}, {2, 0}},
			ended:  true,
			winner: "alice",
		},
		{
			// X X O
			// O O X
			// X O X
			name:   "draw",
			cells:  [][2]int{{0, 0}, {0, 2}, {0, 1}, {1, 0}, {1, 2}, {1, 1}, {2, 0}, {2, 1}, {2, 2}},
			ended:  true,
			winner: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)

			game := newGame(t)
			players := [2]string{"alice", "bob"}
			for i, cell := range tt.cells {
				game.ApplyMove(&tictactoe.Move{
					PlayerID: players[i%2],
					Row:      cell[0],
					Col:      cell[1],
				})
			}

			ended, winner := game.EndCondition()
			is.Equal(ended, tt.ended)
			is.Equal(winner, tt.winner)
		})
	}
}

func TestNoMovesAfterGameEnds(t *testing.T) {
	is := is.New(t)

	game := newGame(t)
	// alice takes the top row
	moves := []tictactoe.Move{
		{PlayerID: "alice", Row: 0, Col: 0},
		{PlayerID: "bob", Row: 1, Col: 0},
		{PlayerID: "alice", Row: 0, Col: 1},
		{PlayerID: "bob", Row: 1, Col: 1},
		{PlayerID: "alice", Row: 0, Col: 2},
	}
	for i := range moves {
		game.ApplyMove(&moves[i])
	}

	ended, winner := game.EndCondition()
	is.True(ended)
	is.Equal(winner, "alice")

	is.True(!game.IsValidMove(&tictactoe.Move{PlayerID: "bob", Row: 2, Col: 2}))
	game.ApplyMove(&tictactoe.Move{PlayerID: "bob", Row: 2, Col: 2})
	is.Equal(game.State().(*tictactoe.State).Board[2][2], "")
}

func TestSetState(t *testing.T) {
	is := is.New(t)

	game := newGame(t)
	game.ApplyMove(&tictactoe.Move{PlayerID: "alice", Row: 2, Col: 0})

	fresh := tictactoe.New()
	err := fresh.SetState(game.State().Clone())
	is.NoErr(err)
	is.Equal(fresh.State(), game.State())

	err = fresh.SetState(nil)
	is.True(err != nil)
}

func TestStateJSONRoundTrip(t *testing.T) {
	is := is.New(t)

	game := newGame(t)
	game.ApplyMove(&tictactoe.Move{PlayerID: "alice", Row: 1, Col: 2})

	data := []byte(`{"board":[["","",""],["","","X"],["","",""]],"this_turn":"O","x_player":"alice","o_player":"bob"}`)
	decoded, err := game.UnmarshalState(data)
	is.NoErr(err)
	is.Equal(decoded, game.State())
}

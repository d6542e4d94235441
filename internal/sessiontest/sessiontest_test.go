package sessiontest_test

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/WillBeesOn/game-client-server/internal/gameclient"
	"github.com/WillBeesOn/game-client-server/internal/gameserver"
	"github.com/WillBeesOn/game-client-server/internal/protocol"
	"github.com/WillBeesOn/game-client-server/internal/tictactoe"
)

// waitFor polls cond until it holds. The clients apply server pushes on their
// own listen goroutines, so assertions about pushed state have to wait for
// them.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func setup(t *testing.T) (*gameserver.Server, *gameclient.Client, *gameclient.Client) {
	t.Helper()
	is := is.New(t)

	server, err := gameserver.NewServer("tcp", "127.0.0.1:0", nil)
	is.NoErr(err)
	server.RegisterGame(tictactoe.New())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go server.Run(ctx)

	newPlayer := func() *gameclient.Client {
		player := gameclient.NewClient(nil)
		player.RegisterGame(tictactoe.New())
		is.NoErr(player.Connect("tcp", server.Addr().String()))
		player.StartListening()
		t.Cleanup(func() { player.Disconnect() })
		return player
	}

	return server, newPlayer(), newPlayer()
}

func board(player *gameclient.Client) *tictactoe.State {
	state, _ := player.GameState().(*tictactoe.State)
	return state
}

func TestTicTacToeSession(t *testing.T) {
	is := is.New(t)

	_, one, two := setup(t)
	is.True(one.ClientID() != "")
	is.True(one.ClientID() != two.ClientID())

	// player one opens a lobby

	t.Log("create lobby")
	is.NoErr(one.CreateLobby("Tic-tac-toe v1.0"))
	waitFor(t, "lobby snapshot", func() bool { return one.CurrentLobby() != nil })

	lobby := one.CurrentLobby()
	is.Equal(lobby.Owner, one.ClientID())
	is.Equal(lobby.PlayerIDs, []string{one.ClientID()})
	is.Equal(lobby.GameMetadata.GameTypeID(), "Tic-tac-toe v1.0")

	// player two joins; both members get the fresh snapshot

	t.Log("join lobby")
	is.NoErr(two.JoinLobby(lobby.ID))
	waitFor(t, "both members in lobby", func() bool {
		a, b := one.CurrentLobby(), two.CurrentLobby()
		return a != nil && len(a.PlayerIDs) == 2 && b != nil && len(b.PlayerIDs) == 2
	})
	is.Equal(one.ProtocolState(), gameclient.StateInLobby)
	is.Equal(two.ProtocolState(), gameclient.StateInLobby)

	// the owner starts the game; the initial state reaches both players

	t.Log("start game")
	is.NoErr(one.StartGame(lobby.ID))
	waitFor(t, "game running on both", func() bool {
		return one.ProtocolState() == gameclient.StateGameRunning &&
			two.ProtocolState() == gameclient.StateGameRunning
	})

	state := board(one)
	is.Equal(state.ThisTurn, tictactoe.MarkX)
	is.Equal(state.XPlayer, one.ClientID()) // first into the lobby plays X
	is.Equal(state.OPlayer, two.ClientID())
	is.Equal(state.Board[0][0], "")

	// X opens in the center

	t.Log("first move")
	is.NoErr(one.MakeMove(&tictactoe.Move{PlayerID: one.ClientID(), Row: 1, Col: 1}))
	waitFor(t, "move visible to both", func() bool {
		a, b := board(one), board(two)
		return a.Board[1][1] == tictactoe.MarkX && b.Board[1][1] == tictactoe.MarkX
	})
	is.Equal(board(two).ThisTurn, tictactoe.MarkO)

	// O tries the occupied cell; only the mover hears about the rejection

	t.Log("rejected move")
	is.NoErr(two.MakeMove(&tictactoe.Move{PlayerID: two.ClientID(), Row: 1, Col: 1}))
	waitFor(t, "move rejection", func() bool {
		return two.LastError() == protocol.StatusInvalidMove
	})
	is.Equal(board(two).Board[1][1], tictactoe.MarkX)
	is.Equal(board(two).ThisTurn, tictactoe.MarkO)

	// play out an X win on the anti-diagonal

	t.Log("play to the end")
	moves := []struct {
		player *gameclient.Client
		row    int
		col    int
	}{
		{two, 0, 0},
		{one, 2, 0},
		{two, 0, 1},
		{one, 0, 2},
	}
	for _, mv := range moves {
		is.NoErr(mv.player.MakeMove(&tictactoe.Move{PlayerID: mv.player.ClientID(), Row: mv.row, Col: mv.col}))
		waitFor(t, "move applied", func() bool {
			a, b := board(one), board(two)
			mark := a.Board[mv.row][mv.col]
			return mark != "" && mark == b.Board[mv.row][mv.col]
		})
	}

	ended, winner, ok := one.GameEndResult()
	is.True(ok)
	is.True(ended)
	is.Equal(winner, one.ClientID())

	ended, winner, ok = two.GameEndResult()
	is.True(ok)
	is.True(ended)
	is.Equal(winner, one.ClientID())

	// a move after the game ended is refused

	is.NoErr(two.MakeMove(&tictactoe.Move{PlayerID: two.ClientID(), Row: 2, Col: 2}))
	waitFor(t, "game over rejection", func() bool {
		return two.LastError() == protocol.StatusGameOver
	})

	// both return to the lobby; the session ends when the last player leaves

	t.Log("return to lobby")
	is.NoErr(one.ReturnToLobby())
	waitFor(t, "player one back in lobby", func() bool {
		return one.ProtocolState() == gameclient.StateInLobby
	})
	is.True(one.CurrentLobby().GameStarted)

	is.NoErr(two.ReturnToLobby())
	waitFor(t, "player two back in lobby", func() bool {
		lobby := two.CurrentLobby()
		return lobby != nil && !lobby.GameStarted
	})

	is.NoErr(one.RefreshCurrentLobby())
	waitFor(t, "refreshed snapshot", func() bool {
		return !one.CurrentLobby().GameStarted
	})
}

func TestSupportedGames(t *testing.T) {
	is := is.New(t)

	_, one, _ := setup(t)

	is.NoErr(one.RequestSupportedGames())
	waitFor(t, "supported games", func() bool {
		return len(one.SupportedGames()) > 0
	})

	games := one.SupportedGames()
	is.Equal(len(games), 1)
	is.Equal(games[0].Title, "Tic-tac-toe")
	is.Equal(games[0].GameTypeID, "Tic-tac-toe v1.0")
}

func TestCreateLobbyUnsupportedGame(t *testing.T) {
	is := is.New(t)

	_, one, _ := setup(t)

	is.NoErr(one.CreateLobby("Chess v1.0"))
	waitFor(t, "rejection", func() bool {
		return one.LastError() == protocol.StatusUnsupportedGame
	})
	is.Equal(one.ProtocolState(), gameclient.StateIdle) // rolled back to the pre-request state
	is.Equal(one.CurrentLobby(), nil)
}

func TestLeaveLobby(t *testing.T) {
	is := is.New(t)

	_, one, two := setup(t)

	is.NoErr(one.CreateLobby("Tic-tac-toe v1.0"))
	waitFor(t, "lobby snapshot", func() bool { return one.CurrentLobby() != nil })
	lobbyID := one.CurrentLobby().ID

	is.NoErr(two.JoinLobby(lobbyID))
	waitFor(t, "both members in lobby", func() bool {
		lobby := one.CurrentLobby()
		return lobby != nil && len(lobby.PlayerIDs) == 2
	})

	// the owner leaves; ownership moves to the remaining member

	is.NoErr(one.LeaveLobby())
	waitFor(t, "owner left", func() bool {
		return one.ProtocolState() == gameclient.StateIdle
	})
	is.Equal(one.CurrentLobby(), nil)

	waitFor(t, "ownership transfer", func() bool {
		lobby := two.CurrentLobby()
		return lobby != nil && lobby.Owner == two.ClientID()
	})
	is.Equal(two.CurrentLobby().PlayerIDs, []string{two.ClientID()})

	// leaving while not in a lobby is an acknowledged no-op

	is.NoErr(one.LeaveLobby())
	waitFor(t, "no-op leave acknowledged", func() bool {
		return one.ProtocolState() == gameclient.StateIdle
	})
}

func TestDisconnectCleansUpLobby(t *testing.T) {
	is := is.New(t)

	_, one, two := setup(t)

	is.NoErr(one.CreateLobby("Tic-tac-toe v1.0"))
	waitFor(t, "lobby snapshot", func() bool { return one.CurrentLobby() != nil })

	is.NoErr(one.Disconnect())
	waitFor(t, "disconnected", func() bool {
		return one.ProtocolState() == gameclient.StateClosed
	})

	// the empty lobby is gone once the server finishes cleanup
	waitFor(t, "lobby removed", func() bool {
		if err := two.RequestLobbyList(); err != nil {
			return false
		}
		time.Sleep(10 * time.Millisecond)
		return len(two.LobbyList()) == 0
	})
}

func TestUnsolicitedMessage(t *testing.T) {
	is := is.New(t)

	server, one, _ := setup(t)

	is.NoErr(server.SendUnsolicited(one.ClientID(), "server restart at midnight"))
	waitFor(t, "unsolicited message", func() bool {
		return one.LastUnsolicited() == "server restart at midnight"
	})
}

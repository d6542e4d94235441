// A minimal terminal client exercising the session handler API. Any
// presentation layer can drive the same surface; this one reads commands from
// stdin and prints the local view after every server push.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/phuslu/log"

	"github.com/WillBeesOn/game-client-server/internal/gameclient"
	"github.com/WillBeesOn/game-client-server/internal/tictactoe"
)

type Config struct {
	ServerAddr string `envconfig:"SERVER_ADDR" default:"127.0.0.1:7878"`
}

func configureLogger() *log.Logger {
	logger := log.DefaultLogger

	logger.Level = log.WarnLevel
	logger.TimeFormat = "15:04:05"
	logger.Writer = &log.ConsoleWriter{
		ColorOutput:    true,
		QuoteString:    true,
		EndWithMessage: true,
	}

	return &logger
}

const usage = `commands:
  games                 list games supported by both peers
  lobbies               list open lobbies
  create <game_type_id> create a lobby
  join <lobby_id>       join a lobby
  leave                 leave the current lobby
  start                 start the game (owner only)
  move <row> <col>      place a mark
  back                  return to the lobby
  state                 print the local view
  quit                  disconnect and exit`

func erringMain() error {
	config := new(Config)
	if err := envconfig.Process("", config); err != nil {
		return fmt.Errorf("could not process config: %w", err)
	}

	logger := configureLogger()

	client := gameclient.NewClient(logger)
	client.RegisterGame(tictactoe.New())

	if err := client.Connect("tcp", config.ServerAddr); err != nil {
		return fmt.Errorf("could not connect: %w", err)
	}
	fmt.Printf("connected, client id %s\n", client.ClientID())
	client.StartListening()

	go func() {
		for range client.Notify() {
			printView(client)
		}
	}()

	fmt.Println(usage)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "games":
			err = client.RequestSupportedGames()
		case "lobbies":
			err = client.RequestLobbyList()
		case "create":
			if len(fields) < 2 {
				fmt.Println(usage)
				continue
			}
			err = client.CreateLobby(strings.Join(fields[1:], " "))
		case "join":
			if len(fields) != 2 {
				fmt.Println(usage)
				continue
			}
			err = client.JoinLobby(fields[1])
		case "leave":
			err = client.LeaveLobby()
		case "start":
			lobby := client.CurrentLobby()
			if lobby == nil {
				fmt.Println("not in a lobby")
				continue
			}
			err = client.StartGame(lobby.ID)
		case "move":
			if len(fields) != 3 {
				fmt.Println(usage)
				continue
			}
			row, rowErr := strconv.Atoi(fields[1])
			col, colErr := strconv.Atoi(fields[2])
			if rowErr != nil || colErr != nil {
				fmt.Println(usage)
				continue
			}
			err = client.MakeMove(&tictactoe.Move{
				PlayerID: client.ClientID(),
				Row:      row,
				Col:      col,
			})
		case "back":
			err = client.ReturnToLobby()
		case "state":
			printView(client)
		case "quit":
			return client.Disconnect()
		default:
			fmt.Println(usage)
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}

	return scanner.Err()
}

func printView(client *gameclient.Client) {
	fmt.Printf("state: %s", client.ProtocolState())
	if lastErr := client.LastError(); lastErr != 0 {
		fmt.Printf(" (last error: %s)", lastErr)
	}
	fmt.Println()

	if games := client.SupportedGames(); len(games) > 0 {
		for _, g := range games {
			fmt.Printf("  game: %s (%s)\n", g.Title, g.GameTypeID)
		}
	}
	for _, lobby := range client.LobbyList() {
		fmt.Printf("  lobby %s: %d/%d players, started=%v\n",
			lobby.ID, len(lobby.PlayerIDs), lobby.GameMetadata.MaxPlayers, lobby.GameStarted)
	}
	if lobby := client.CurrentLobby(); lobby != nil {
		fmt.Printf("  in lobby %s, owner %s, players %v\n", lobby.ID, lobby.Owner, lobby.PlayerIDs)
	}
	if state, ok := client.GameState().(*tictactoe.State); ok {
		for _, row := range state.Board {
			line := make([]string, len(row))
			for i, cell := range row {
				if cell == "" {
					cell = "."
				}
				line[i] = cell
			}
			fmt.Printf("  %s\n", strings.Join(line, " "))
		}
		fmt.Printf("  turn: %s\n", state.ThisTurn)
		if ended, winner, ok := client.GameEndResult(); ok && ended {
			if winner == "" {
				fmt.Println("  game over: draw")
			} else {
				fmt.Printf("  game over: %s wins\n", winner)
			}
		}
	}
	if msg := client.LastUnsolicited(); msg != "" {
		fmt.Printf("  server says: %s\n", msg)
	}
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

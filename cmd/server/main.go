package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/phuslu/log"

	"github.com/WillBeesOn/game-client-server/internal/gameserver"
	"github.com/WillBeesOn/game-client-server/internal/tictactoe"
)

type Config struct {
	Addr string `envconfig:"ADDR" default:"0.0.0.0:7878"`
	// ReadTimeout is the per-read inactivity deadline; 0 disables it.
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT" default:"0"`
}

func loadConfig() (*Config, error) {
	config := new(Config)
	if err := envconfig.Process("", config); err != nil {
		return nil, err
	}
	return config, nil
}

func configureLogger() *log.Logger {
	logger := log.DefaultLogger

	logger.Caller = 1
	logger.TimeFormat = "15:04:05"
	logger.Writer = &log.ConsoleWriter{
		ColorOutput:    true,
		QuoteString:    true,
		EndWithMessage: true,
	}

	return &logger
}

func erringMain() error {
	config, err := loadConfig()
	if err != nil {
		return fmt.Errorf("could not process config: %w", err)
	}

	logger := configureLogger()

	server, err := gameserver.NewServer("tcp", config.Addr, logger)
	if err != nil {
		return fmt.Errorf("could not construct game server: %w", err)
	}
	server.SetReadTimeout(config.ReadTimeout)
	server.RegisterGame(tictactoe.New())
	logger.Info().Msgf("started game server on %s", config.Addr)

	wg := new(sync.WaitGroup)
	ctx, cancel := context.WithCancel(context.Background())

	wg.Add(1)
	var serverRunErr error
	go func() {
		defer wg.Done()
		serverRunErr = server.Run(ctx)
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-signalChan
	logger.Info().Msgf("received %+v signal", sig)

	cancel()
	wg.Wait()
	if serverRunErr != nil {
		return fmt.Errorf("game server run failed: %w", serverRunErr)
	}

	return nil
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

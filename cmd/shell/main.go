package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/swindlechess/swindler/config"
	"github.com/swindlechess/swindler/shell"
	"github.com/swindlechess/swindler/swindle"
)

var (
	GitVersion string
)

func main() {
	cfg := &config.Config{}
	if err := cfg.Load(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := cfg.SetupLogging(os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Println("swindler", GitVersion)
	log.Info().Msgf("Loaded config: %v", cfg.SanitizedSettings())

	if path := os.Getenv("SWINDLER_CPU_PROFILE"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			panic("could not create CPU profile: " + err.Error())
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			panic("could not start CPU profile: " + err.Error())
		}
		defer pprof.StopCPUProfile()
	}

	s, err := swindle.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("starting-session")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idleConnsClosed := make(chan struct{})
	sig := make(chan os.Signal, 1)
	go func() {
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("got quit signal...")
		cancel()
		close(idleConnsClosed)
	}()

	sc, err := shell.NewShellController(cfg, s)
	if err != nil {
		log.Fatal().Err(err).Msg("starting-readline")
	}
	if line := strings.TrimSpace(strings.Join(cfg.Args(), " ")); line != "" {
		// one command given on the command line
		resp, err := sc.Execute(ctx, line)
		if err != nil {
			log.Error().Err(err).Msg("command-failed")
		} else {
			fmt.Println(resp)
		}
		sig <- syscall.SIGINT
	} else {
		go sc.Loop(ctx, sig)
	}

	<-idleConnsClosed
	if err := s.Dispose(); err != nil {
		log.Err(err).Msg("disposing-session")
	}
	log.Info().Msg("shell shutting down")
}

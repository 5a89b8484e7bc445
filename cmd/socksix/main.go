// Command socksix is the CLI entry point for the SOCKS5/SOCKS6 chaining
// proxy: one listener that speaks either protocol and, when
// configured, chains outbound through a sequence of upstream SOCKS6
// (or bridged SOCKS5) hops.
package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iam54r1n4/socksix/internal/config"
	"github.com/Iam54r1n4/socksix/internal/flags"
	"github.com/Iam54r1n4/socksix/internal/logger"
	"github.com/Iam54r1n4/socksix/pkg/dispatch"
)

// Exit codes: 0 clean shutdown, 1 bad config, 2 bind failure.
// logger.Fatal always exits 1, which doesn't let a caller distinguish
// a config problem from a bind failure, so the bind-failure path here
// exits directly instead of going through Fatal.
const exitBindFailure = 2

var errBadConfig = errors.New("socksix: invalid configuration")

func main() {
	cfg, err := config.Load(config.Options{
		Host:       flags.Host,
		Port:       flags.Port,
		Protocol:   flags.Protocol,
		ChainURLs:  []string(flags.Chain),
		ConfigPath: flags.ConfigPath,
	})
	if err != nil {
		logger.Fatal(errors.Join(errBadConfig, err))
	}

	d := dispatch.New(dispatch.Config{
		Host:             cfg.Host,
		Port:             cfg.Port,
		Chain:            cfg.Chain,
		Creds:            cfg.Socks5Credentials,
		HandshakeTimeout: cfg.HandshakeTimeout,
		DialTimeout:      cfg.DialTimeout,
	})

	if err := d.Listen(); err != nil {
		logger.Error("bind failed: ", err)
		os.Exit(exitBindFailure)
	}

	// SIGINT/SIGTERM close the listener, which ends Serve with a nil
	// error so main returns and the process exits 0.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		d.Close()
	}()

	if err := d.Serve(); err != nil {
		logger.Error("serve loop exited: ", err)
		os.Exit(exitBindFailure)
	}
}

// Package main starts the signup statistics service process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	signupinfocmd "github.com/Scouterna/j26-signupinfo/internal/cmd/signupinfo"
)

func main() {
	cfg, err := signupinfocmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[SIGNUPINFO] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Probe {
		if err := signupinfocmd.RunProbe(ctx, cfg); err != nil {
			log.Fatalf("probe: %v", err)
		}
		return
	}
	if err := signupinfocmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

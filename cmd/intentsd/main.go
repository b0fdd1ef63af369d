// Command intentsd runs an intents settlement node.
//
// Usage:
//
//	intentsd [--network=testnet --genesis=...]
//	intentsd --help
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Klingon-tech/klingnet-intents/config"
	"github.com/Klingon-tech/klingnet-intents/internal/node"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	switch {
	case errors.Is(err, flag.ErrHelp):
		fmt.Print(config.Usage)
		return
	case errors.Is(err, config.ErrVersion):
		fmt.Println("intentsd version " + config.Version)
		return
	case err != nil:
		fatal(err)
	}

	n, err := node.New(cfg)
	if err != nil {
		fatal(err)
	}
	if err := n.Start(); err != nil {
		n.Stop()
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	n.Stop()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

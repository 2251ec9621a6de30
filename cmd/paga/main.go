package main

import (
	"context"
	"fmt"
	"os"

	"paga/internal/cli"
	"paga/internal/log"
)

func main() {
	cli.LoadEnvFile()
	boot := cli.SetupLogger(nil, log.ComponentCLI, os.Stderr)
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg, log.ComponentCLI, os.Stderr)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	root := cli.NewRootCmd(cli.ConfigOpener(cfg, logger), nil)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, cli.Negative("error: ")+err.Error())
		os.Exit(1)
	}
}

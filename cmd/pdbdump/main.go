// pdbdump is a CLI tool for inspecting the type catalogs of Microsoft PDB
// files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jtang613/pdbtpi/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command tiercache inspects and maintains the disk tiers of a tiercache directory.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hupe1980/tiercache/internal/cli"
)

func main() {
	app := cli.New()

	if err := app.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

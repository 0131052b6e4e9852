// Command scanproxy serves the OnlyScans Reddit and SEC EDGAR proxy.
package main

import (
	"os"

	"github.com/onlyscans/scanproxy/internal/cli"
)

func main() {
	cli.InitCLI()
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}

package main

import (
	"os"

	"github.com/malbeclabs/ads-analyst/internal/cli"
)

func main() {
	os.Exit(int(cli.Run()))
}

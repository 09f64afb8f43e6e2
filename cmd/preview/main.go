package main

import (
	"os"

	"github.com/melih/lighthouse-preview/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

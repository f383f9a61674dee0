package main

import (
	"os"

	"minic/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

package main

import (
	"os"

	"github.com/tos-kamiya/o-o/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Run(os.Args[1:], version))
}

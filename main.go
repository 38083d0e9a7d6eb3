package main

import (
	"fmt"
	"os"

	"github.com/miosa/chatai/cmd"
)

var version = "dev"

func main() {
	if err := cmd.App(version).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "chatai: %s\n", err)
		os.Exit(1)
	}
}

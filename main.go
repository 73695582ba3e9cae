package main

import (
	"os"

	"github.com/cmdscript/cmdscript/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

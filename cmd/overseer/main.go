package main

import (
	"fmt"
	"os"

	"github.com/overseerd/overseer/cmd/overseer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

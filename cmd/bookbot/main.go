package main

import (
	"fmt"
	"os"

	"github.com/dfeldman/bookbot-sub000/cmd/bookbot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"
)

// version is set with -ldflags "-X main.version=...".
var version = ""

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

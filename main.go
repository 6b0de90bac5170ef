package main

import (
	"github.com/AsterZephyr/rotascope/cmd"
	pmode "github.com/AsterZephyr/rotascope/config/mode"
)

var (
	version    = "unknown"
	commitHash = "unknown"
	mode       = pmode.Dev
)

func main() {
	pmode.Set(mode)
	cmd.Run(version, commitHash)
}

package main

import (
	"os"

	"trading-signalsv1/cmd/signalengine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

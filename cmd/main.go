package main

import (
	"os"

	"github.com/soundprediction/groundgraph/cmd/groundgraph"
)

func main() {
	if err := groundgraph.Execute(); err != nil {
		os.Exit(1)
	}
}

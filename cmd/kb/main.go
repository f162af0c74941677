package main

import (
	"fmt"
	"os"

	"knowledgebase/internal/cli"
	"knowledgebase/internal/logging"
)

func main() {
	logging.Setup("", "")

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

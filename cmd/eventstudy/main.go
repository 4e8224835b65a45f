// Command eventstudy runs event studies of analyst recommendation changes.
package main

import (
	"fmt"
	"os"

	"eventstudy/internal/cli"
	"eventstudy/internal/logging"
)

func main() {
	logger := logging.NewLogger()

	if err := cli.NewRootCmd(logger).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

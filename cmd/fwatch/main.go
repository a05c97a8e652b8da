// Command fwatch is the operator CLI for ForeclosureWatch.
package main

import (
	"os"

	"github.com/turtacn/ForeclosureWatch/internal/interfaces/cli"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(errors.ExitStatus(err))
	}
}

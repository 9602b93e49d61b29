package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"pkgsweep/internal/quarantine"
)

// exitNoRecord distinguishes "no matching quarantine record" from generic
// failure so scripts can branch on it.
const exitNoRecord = 2

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		if errors.Is(err, quarantine.ErrRecordNotFound) {
			os.Exit(exitNoRecord)
		}
		os.Exit(1)
	}
}

// Command matchctl is the operator CLI for a matchlearn server.
package main

import (
	"fmt"
	"os"

	"github.com/okian/matchlearn/internal/opsctl"
)

func main() {
	if err := opsctl.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "matchctl:", err)
		os.Exit(1)
	}
}

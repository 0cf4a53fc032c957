// Command ltxd runs the LTX test-executor agent. It takes no flags and
// consults no environment variables: its entire configuration is which
// file descriptors the controller has wired up to fd 0/1/2 (spec §6, A.3).
package main

import (
	"os"

	"github.com/ossexec/ltxd"
)

func main() {
	agent, err := ltx.New(ltx.Options{})
	if err != nil {
		os.Stderr.WriteString("ltxd: " + err.Error() + "\n")
		os.Exit(1)
	}

	os.Exit(agent.Run())
}

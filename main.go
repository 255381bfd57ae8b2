// The main package for the pwacrawler executable.
package main

import (
	"github.com/JakeFAU/pwa-discovery/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

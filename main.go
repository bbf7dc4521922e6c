// The main package for the bathroombuddy executable.
package main

import (
	"github.com/JakeFAU/bathroom-buddy/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

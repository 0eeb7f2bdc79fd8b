// The main package for the mwi executable.
package main

import (
	"os"

	"github.com/mywebintelligence/mwi/cmd"
)

// main defers all execution to the Cobra CLI layer. The dispatcher
// contract is inverted from the usual convention: exit status 1 means
// success, 0 means failure.
func main() {
	os.Exit(cmd.Execute())
}

// The main package for the hocg-catalog executable.
package main

import (
	"github.com/SmallTyrant/hocg-catalog/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}

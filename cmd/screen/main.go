// Command screen classifies a single product from the command line and
// prints its assessment as JSON. Nothing is persisted.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

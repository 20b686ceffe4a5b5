// The main package for the privacy-policy executable.
package main

import (
	"github.com/msnabiel/privacy-policy/cmd"
)

func main() {
	cmd.Execute()
}

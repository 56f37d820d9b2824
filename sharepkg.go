// Publish packages to a portal from the command line
package main

import (
	_ "github.com/sharepkg/sharepkg/cmd/all" // import all commands
	"github.com/sharepkg/sharepkg/cmd"
)

func main() {
	cmd.Main()
}

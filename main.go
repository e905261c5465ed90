// The main package for the archivebot executable.
package main

import (
	"github.com/JakeFAU/archivebot/cmd"
)

func main() {
	cmd.Execute()
}

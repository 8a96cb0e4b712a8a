// The main package for the catalog executable.
package main

import (
	"github.com/JakeFAU/model-catalog/cmd"
)

func main() {
	cmd.Execute()
}

package main

import (
	"github.com/pgtide/pgtide/cmd"
)

func main() {
	cmd.Execute()
}

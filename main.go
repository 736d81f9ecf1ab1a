package main

import (
	"github.com/verilayer/verilayer/cmd"
)

func main() {
	cmd.Execute()
}

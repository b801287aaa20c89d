package main

import (
	"github.com/purpose168/chorus/internal/cmd"
)

func main() {
	cmd.Execute()
}

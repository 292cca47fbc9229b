package main

import (
	"os"

	"pilot/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

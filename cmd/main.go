package main

import (
	"casestream.ai/cli/internal/interfaces/cli"
)

func main() {
	cli.Execute()
}

package main

import "github.com/agentic-research/jflat/cmd"

func main() {
	cmd.Execute()
}

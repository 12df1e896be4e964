package main

import "github.com/relaymarket/secgate/internal/cli"

func main() {
	cli.Execute()
}

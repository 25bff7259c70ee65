package main

import "github.com/akeating/ccontacts/internal/cli"

func main() {
	cli.Execute()
}

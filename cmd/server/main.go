package main

import "boardflow/cmd/cli"

func main() {
	cli.Execute()
}

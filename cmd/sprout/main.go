package main

import "github.com/kcaldas/storysprout/cmd/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/autonomeal/autonomeal/cmd/autonomealctl/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/nextlevelbuilder/agentdaemon/cmd"

func main() {
	cmd.Execute()
}

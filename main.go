package main

import "github.com/kozaktomas/visualmatch/cmd"

func main() {
	cmd.Execute()
}

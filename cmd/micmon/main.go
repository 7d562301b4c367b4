package main

import "github.com/RyanBlaney/micmon/cmd"

func main() {
	cmd.Execute()
}

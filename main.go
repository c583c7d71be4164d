package main

import "pavebot/cmd"

func main() {
	cmd.Execute()
}

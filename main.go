package main

import "pollster/cmd"

func main() {
	cmd.Execute()
}

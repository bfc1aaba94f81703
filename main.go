package main

import "github.com/yz4230/bluegreen/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/tanq16/chunkrelay/cmd"

func main() {
	cmd.Execute()
}

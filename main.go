package main

import "taskforce/cmd"

func main() {
	cmd.Execute()
}

package main

import "loadsurge/cmd"

func main() {
	cmd.Execute()
}

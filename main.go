package main

import "github.com/nzcve71300/Zentro-Assistant/cmd"

func main() {
	cmd.Execute()
}

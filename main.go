package main

import "github.com/ValentinKolb/tlock/cmd"

func main() {
	cmd.Execute()
}

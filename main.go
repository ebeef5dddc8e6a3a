package main

import "github.com/nextlevelbuilder/warpbridge/cmd"

func main() {
	cmd.Execute()
}

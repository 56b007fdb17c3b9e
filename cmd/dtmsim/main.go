package main

import "github.com/OpenTraceLab/OpenTraceDTM/cmd/dtmsim/cmd"

func main() {
	cmd.Execute()
}

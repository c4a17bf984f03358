package main

import "github.com/MeKo-Tech/scan2sheets/cmd/scan2sheets/cmd"

func main() {
	cmd.Execute()
}

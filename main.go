package main

import "github.com/S4tyendra/public-vc/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/andresmejia3/benthic/cmd"

func main() {
	cmd.Execute()
}

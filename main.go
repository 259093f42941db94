package main

import "github.com/suderio/baator/cmd"

func main() {
	cmd.Execute()
}

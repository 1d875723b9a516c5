package main

import "github.com/frahmantamala/momo-settlement/cmd"

func main() {
	cmd.Execute()
}

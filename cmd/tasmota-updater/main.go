package main

import "github.com/oshokin/tasmota-updater/cmd/tasmota-updater/cmd"

func main() {
	cmd.Execute()
}

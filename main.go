package main

import "github.com/turbolytics/eventreplay/internal/cmd"

func main() {
	cmd.Execute()
}

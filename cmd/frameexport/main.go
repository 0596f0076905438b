package main

import "github.com/bryanchriswhite/FrameExport/cmd/frameexport/commands"

func main() {
	commands.Execute()
}

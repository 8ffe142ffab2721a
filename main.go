package main

import "github.com/liuxd6825/cdptab/cmd"

func main() {
	cmd.Execute()
}

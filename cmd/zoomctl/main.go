package main

import "github.com/leozw/zoom-dashboard/internal/cli"

func main() {
	cli.Execute()
}

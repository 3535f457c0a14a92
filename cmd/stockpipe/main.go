package main

import "stock-analytics/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/vietddude/warmup/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/vietddude/regsync/internal/cli"

func main() {
	cli.Execute()
}

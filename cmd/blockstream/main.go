package main

import "github.com/vietddude/blockstream/internal/cli"

func main() {
	cli.Execute()
}

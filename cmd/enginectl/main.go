// Command enginectl drives the engine streaming client from the shell.
package main

import "github.com/nczempin/enginestream/internal/cli"

func main() {
	cli.Execute()
}

// Command bridgefetch sends one HTTP request through an httpbridge
// transport and streams the response to stdout.
package main

import "github.com/kbukum/httpbridge/internal/cli"

func main() {
	cli.Execute()
}

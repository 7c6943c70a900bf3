// Package main is the echo worker's process entrypoint.
package main

import (
	_ "github.com/geoffjay/dispatchd/module/echo"
	"github.com/geoffjay/dispatchd/worker/cli"
)

func main() {
	cli.Run("echo")
}

// Package main is the metric worker's process entrypoint.
package main

import (
	_ "github.com/geoffjay/dispatchd/module/metric"
	"github.com/geoffjay/dispatchd/worker/cli"
)

func main() {
	cli.Run("metric")
}

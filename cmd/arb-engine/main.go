package main

import (
	"github.com/arb-engine/flashloan-arb-engine/internal/cli"
)

func main() {
	cli.Execute()
}

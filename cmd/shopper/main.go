package main

import (
	"github.com/RickyRick89/shopper/internal/cli"
)

func main() {
	cli.Execute()
}

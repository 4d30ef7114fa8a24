package main

import (
	"os"

	"github.com/pointdag/pointdagd/app"
)

func main() {
	if err := app.StartApp(); err != nil {
		os.Exit(1)
	}
}

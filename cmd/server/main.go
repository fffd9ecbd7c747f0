package main

import (
	"context"
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := newApp().Command().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

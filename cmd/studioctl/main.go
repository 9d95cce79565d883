package main

import (
	"fmt"
	"os"

	"github.com/digkill/imagestudio/internal/config"
)

func main() {
	if err := newRootCommand(config.Load).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

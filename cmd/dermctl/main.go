package main

import (
	"fmt"
	"os"

	"dermd/internal/dermctl"
)

func main() {
	if err := dermctl.Run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"
)

func main() {
	root := newRoot()
	if err := root.Command().Execute(); err != nil {
		if _, failed := err.(*runFailedError); !failed {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

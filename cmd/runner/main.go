package main

import (
	"fmt"
	"os"

	"github.com/askui/askui-runner/pkg/cmd"
)

func main() {
	if err := cmd.NewCommand().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

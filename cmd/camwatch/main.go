// Package main は camwatch コマンドの実装です
package main

import (
	"fmt"
	"os"

	"camwatch/internal/cli"
)

func main() {
	if err := cli.NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		os.Exit(1)
	}
}

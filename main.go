package main

import (
	"log"
	"os"

	"camwatch/internal/cli"
)

func main() {
	// 引数が無ければサーバーとして起動する
	args := os.Args
	if len(args) == 1 {
		args = append(args, "serve")
	}

	if err := cli.NewApp().Run(args); err != nil {
		log.Fatalf("camwatch の実行に失敗しました: %v", err)
	}
}

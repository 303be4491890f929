// Command ambaria はポッドキャスト配信APIサーバーを起動する。
//
// サブコマンド:
//
//	serve        APIサーバーを起動する（デフォルト）
//	migrate      データベースマイグレーションを適用する
//	healthcheck  起動中のサーバーの/healthを確認する
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/ambaria/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ambaria: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/lockin-app/lockin-rag/cmd/lockin-rag/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
	userFlag := &cli.StringFlag{
		Name:     "user",
		Usage:    "対象ユーザーID（UUID）",
		Required: true,
	}

	app := &cli.Command{
		Name:  "lockin-rag",
		Usage: "個人ナレッジベース向け RAG パイプラインおよび API サーバ",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "HTTP APIサーバを起動",
				Flags: []cli.Flag{
					envFlag,
					&cli.IntFlag{
						Name:  "port",
						Usage: "待ち受けポート（設定ファイルより優先）",
					},
				},
				Action: commands.ServeAction,
			},
			{
				Name:  "ask",
				Usage: "ナレッジベースへ質問",
				Flags: []cli.Flag{
					envFlag,
					userFlag,
					&cli.StringFlag{
						Name:     "question",
						Usage:    "質問文",
						Required: true,
					},
				},
				Action: commands.AskAction,
			},
			{
				Name:  "resource",
				Usage: "学習リソース管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "add",
						Usage: "URLからリソースを登録",
						Flags: []cli.Flag{
							envFlag,
							userFlag,
							&cli.StringFlag{
								Name:     "url",
								Usage:    "登録するURL",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "title",
								Usage: "タイトル（省略時は自動取得）",
							},
							&cli.StringSliceFlag{
								Name:  "tag",
								Usage: "タグ（複数指定可）",
							},
							&cli.StringFlag{
								Name:  "notes",
								Usage: "メモ",
							},
						},
						Action: commands.ResourceAddAction,
					},
					{
						Name:  "import",
						Usage: "URL一覧ファイルからまとめて登録",
						Flags: []cli.Flag{
							envFlag,
							userFlag,
							&cli.StringFlag{
								Name:     "file",
								Usage:    "URLを1行1件で記載したファイル",
								Required: true,
							},
						},
						Action: commands.ResourceImportAction,
					},
					{
						Name:  "list",
						Usage: "リソース一覧を表示",
						Flags: []cli.Flag{
							envFlag,
							userFlag,
							&cli.StringFlag{
								Name:  "type",
								Usage: "種別で絞り込み（article, video, document, image, website, documentation）",
							},
							&cli.StringFlag{
								Name:  "tag",
								Usage: "タグで絞り込み",
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "表示件数の上限",
								Value: 50,
							},
						},
						Action: commands.ResourceListAction,
					},
					{
						Name:  "show",
						Usage: "リソース詳細を表示",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "id",
								Usage:    "リソースID",
								Required: true,
							},
						},
						Action: commands.ResourceShowAction,
					},
					{
						Name:  "delete",
						Usage: "リソースを削除",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "id",
								Usage:    "リソースID",
								Required: true,
							},
						},
						Action: commands.ResourceDeleteAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

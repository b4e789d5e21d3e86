package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/lockin-app/lockin-rag/internal/core/answer"
)

// AskAction はナレッジベースへ質問するコマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	question := cmd.String("question")

	userID, err := parseUserID(cmd)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	resp, err := appCtx.Container.Composer.Answer(ctx, userID, question, nil)
	if err != nil {
		return fmt.Errorf("回答の生成に失敗: %w", err)
	}

	fmt.Println(resp.Content)

	if resp.Type == answer.TypeMessage && len(resp.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, source := range resp.Sources {
			fmt.Printf("  - %s (score: %.2f)\n", source.Title, source.Score)
			if source.URL != "" {
				fmt.Printf("    %s\n", source.URL)
			}
		}
	}

	return nil
}

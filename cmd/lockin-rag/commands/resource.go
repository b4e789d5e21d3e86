package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	"github.com/lockin-app/lockin-rag/internal/core/resource"
)

// ResourceAddAction はURLからリソースを登録するコマンドのアクション
func ResourceAddAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	userID, err := parseUserID(cmd)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	// Closeでキューを排出するため、エンリッチ完了後にプロセスが終了する
	defer appCtx.Close()

	created, err := appCtx.Container.ResourceService.CreateFromURL(ctx, resource.CreateFromURLParams{
		UserID: userID,
		URL:    cmd.String("url"),
		Title:  cmd.String("title"),
		Notes:  cmd.String("notes"),
		Tags:   cmd.StringSlice("tag"),
	})
	if err != nil {
		return fmt.Errorf("リソースの登録に失敗: %w", err)
	}

	fmt.Printf("登録しました: %s (%s)\n", created.Title, created.ID)
	return nil
}

// ResourceImportAction はURL一覧ファイルからまとめて登録するコマンドのアクション
func ResourceImportAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	filePath := cmd.String("file")

	userID, err := parseUserID(cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	var urls []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if len(urls) == 0 {
		return fmt.Errorf("%s に登録対象のURLがありません", filePath)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	created, err := appCtx.Container.ResourceService.BulkImport(ctx, userID, urls)
	if err != nil {
		return fmt.Errorf("一括登録に失敗: %w", err)
	}

	fmt.Printf("%d / %d 件を登録しました\n", len(created), len(urls))
	return nil
}

// ResourceListAction はリソース一覧を表示するコマンドのアクション
func ResourceListAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	userID, err := parseUserID(cmd)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	filter := resource.ListFilter{
		UserID: userID,
		Limit:  int(cmd.Int("limit")),
	}
	if t := cmd.String("type"); t != "" {
		filter.Type = mo.Some(resource.Type(t))
	}
	if tag := cmd.String("tag"); tag != "" {
		filter.Tag = mo.Some(tag)
	}

	resources, err := appCtx.Container.ResourceService.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("リソースの取得に失敗: %w", err)
	}

	if len(resources) == 0 {
		fmt.Println("リソースはありません")
		return nil
	}

	renderResourcesTable(resources)
	return nil
}

// ResourceShowAction はリソース詳細を表示するコマンドのアクション
func ResourceShowAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("--id はUUID形式で指定してください: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	r, err := appCtx.Container.ResourceService.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("リソースの取得に失敗: %w", err)
	}

	renderResourceDetail(r)
	return nil
}

// ResourceDeleteAction はリソースを削除するコマンドのアクション
func ResourceDeleteAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("--id はUUID形式で指定してください: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.ResourceService.Delete(ctx, id); err != nil {
		return fmt.Errorf("リソースの削除に失敗: %w", err)
	}

	fmt.Printf("削除しました: %s\n", id)
	return nil
}

// renderResourcesTable はテーブル形式でリソース一覧を表示します
func renderResourcesTable(resources []*resource.Resource) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Type", "Title", "Tags", "Indexed", "Created At")

	for _, r := range resources {
		indexed := "no"
		if r.IsIndexed() {
			indexed = "yes"
		}
		table.Append(
			r.ID.String(),
			string(r.Type),
			truncateString(r.Title, 50),
			strings.Join(r.Tags, ", "),
			indexed,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}

	table.Render()
}

// renderResourceDetail はリソースの詳細を表示します
func renderResourceDetail(r *resource.Resource) {
	fmt.Printf("ID:         %s\n", r.ID)
	fmt.Printf("Type:       %s\n", r.Type)
	fmt.Printf("Title:      %s\n", r.Title)
	if r.URL != "" {
		fmt.Printf("URL:        %s\n", r.URL)
	}
	if r.FilePath != "" {
		fmt.Printf("File:       %s\n", r.FilePath)
	}
	if r.Summary != "" {
		fmt.Printf("Summary:    %s\n", r.Summary)
	}
	if len(r.Tags) > 0 {
		fmt.Printf("Tags:       %s\n", strings.Join(r.Tags, ", "))
	}
	if r.Difficulty != "" {
		fmt.Printf("Difficulty: %s\n", r.Difficulty)
	}
	if r.EstimatedTimeMinutes > 0 {
		fmt.Printf("Est. Time:  %d min\n", r.EstimatedTimeMinutes)
	}
	if r.IsIndexed() {
		fmt.Printf("Indexed At: %s\n", r.IndexedAt.Format("2006-01-02 15:04"))
	} else {
		fmt.Println("Indexed At: (not indexed)")
	}
	fmt.Printf("Created At: %s\n", r.CreatedAt.Format("2006-01-02 15:04"))
	if r.Notes != "" {
		fmt.Printf("\nNotes:\n%s\n", r.Notes)
	}
}

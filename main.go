package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/asaidimu/go-crud/core/persistence"
	"github.com/asaidimu/go-crud/core/query"
	"github.com/asaidimu/go-crud/core/schema"
	"github.com/asaidimu/go-crud/sqlite"
	"go.uber.org/zap"
)

const userModelJSON = `{
	"name": "users",
	"columns": [
		{"name": "id", "type": "integer", "primaryKey": true},
		{"name": "name", "type": "string", "required": true},
		{"name": "email", "type": "string", "required": true, "unique": true},
		{"name": "age", "type": "integer", "nullable": true},
		{"name": "is_active", "type": "boolean", "default": true},
		{"name": "is_deleted", "type": "boolean", "default": false},
		{"name": "deleted_at", "type": "datetime", "nullable": true}
	]
}`

func main() {
	dsn := flag.String("db", ":memory:", "sqlite database file")
	filter := flag.String("filter", `{"age__gte": 18}`, "JSON filter document applied to the listing")
	pageSize := flag.Int("page-size", 2, "records per cursor page")
	verbose := flag.Bool("v", false, "log every statement")
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer logger.Sync()

	if err := run(context.Background(), logger, *dsn, *filter, *pageSize); err != nil {
		logger.Error("demo failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, dsn, filter string, pageSize int) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	model, err := schema.ParseModel([]byte(userModelJSON))
	if err != nil {
		return err
	}
	ec := sqlite.New(db, logger)
	if err := ec.CreateTable(ctx, model, nil); err != nil {
		return err
	}

	opts := persistence.DefaultOptions()
	opts.Logger = logger
	users, err := persistence.New(model, ec, opts)
	if err != nil {
		return err
	}

	seed := []map[string]any{
		{"id": 1, "name": "Alice", "email": "alice@example.com", "age": 30, "is_active": true},
		{"id": 2, "name": "Bob", "email": "bob@example.com", "age": 17, "is_active": true},
		{"id": 3, "name": "Carol", "email": "carol@example.com", "age": 45, "is_active": false},
		{"id": 4, "name": "Dave", "email": "dave@example.com", "age": nil, "is_active": true},
	}
	if _, err := users.UpsertMulti(ctx, seed, persistence.UpsertOptions{}); err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	filters, err := query.ParseFiltersJSON(filter)
	if err != nil {
		return err
	}
	listing, err := users.GetMulti(ctx, persistence.GetMultiOptions{
		Filters:     filters,
		SortColumns: []string{"name"},
		Columns:     []string{"id", "name", "age", "is_active"},
		Pagination:  query.Pagination{Unbounded: true},
	})
	if err != nil {
		return err
	}
	if err := printJSON("listing", listing); err != nil {
		return err
	}

	if _, err := users.Update(ctx, map[string]any{"age": 18}, query.Filters{query.F("id", 2)}, persistence.UpdateOptions{}); err != nil {
		return err
	}
	if err := users.Delete(ctx, query.Filters{query.F("id", 3)}, persistence.DeleteOptions{}); err != nil {
		return err
	}

	page := query.CursorPage{Limit: pageSize}
	for n := 1; ; n++ {
		envelope, err := users.GetMultiByCursor(ctx, persistence.CursorOptions{
			Filters: query.Filters{query.F("is_deleted", false)},
			Page:    page,
			Columns: []string{"id", "name", "age"},
		})
		if err != nil {
			return err
		}
		if err := printJSON(fmt.Sprintf("cursor page %d", n), envelope); err != nil {
			return err
		}
		if envelope.HasMore == nil || !*envelope.HasMore {
			return nil
		}
		page.Cursor = envelope.NextCursor
	}
}

func printJSON(title string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", title, err)
	}
	fmt.Printf("%s:\n%s\n", title, data)
	return nil
}

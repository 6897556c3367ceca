package warehouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"stock_pipeline/internal/feature/pipeline/domain"
	"stock_pipeline/internal/feature/pipeline/usecase"

	"github.com/jackc/pgx/v5"
)

// DB is the subset of *pgxpool.Pool the loader uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ObjectReader opens objects from the store the formatted CSV lives in.
type ObjectReader interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Loader はオブジェクトストレージ上のCSVをウェアハウスのテーブルへロードします。
// テーブル作成とデータ投入は1つのトランザクションで行われます。
type Loader struct {
	db      DB
	objects ObjectReader
	mode    Mode
}

// LoaderがLoaderポートを実装していることをコンパイル時に検証します。
var _ usecase.Loader = (*Loader)(nil)

// NewLoader は新しい Loader を作成します。
func NewLoader(db DB, objects ObjectReader, mode Mode) *Loader {
	if mode == "" {
		mode = ModeReplace
	}
	return &Loader{db: db, objects: objects, mode: mode}
}

// Load は req.Source のCSVを読み込み、req.Table に CopyFrom で投入して行数を返します。
// 失敗は全て ErrLoad としてラップされ、テーブルは変更されません。
func (l *Loader) Load(ctx context.Context, req domain.LoadRequest) (int64, error) {
	bucket, key, err := domain.ParseWarehouseSource(req.Source)
	if err != nil {
		return 0, err
	}
	if len(req.Columns) == 0 {
		return 0, fmt.Errorf("%w: no columns for %s", domain.ErrLoad, req.Table)
	}

	rc, err := l.objects.GetObject(ctx, bucket, key)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", domain.ErrLoad, req.Source, err)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			slog.Warn("failed to close csv object", "source", req.Source, "error", err)
		}
	}()

	src, err := newCSVSource(rc, req.Columns)
	if err != nil {
		return 0, err
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", domain.ErrLoad, err)
	}
	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Warn("failed to roll back load", "table", req.Table.String(), "error", err)
		}
	}()

	table := pgx.Identifier{req.Table.Schema, req.Table.Name}
	if _, err := tx.Exec(ctx, createTableSQL(table, req.Columns)); err != nil {
		return 0, fmt.Errorf("%w: create %s: %v", domain.ErrLoad, req.Table, err)
	}
	if l.mode == ModeReplace {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+table.Sanitize()); err != nil {
			return 0, fmt.Errorf("%w: truncate %s: %v", domain.ErrLoad, req.Table, err)
		}
	}

	n, err := tx.CopyFrom(ctx, table, columnNames(req.Columns), src)
	if srcErr := src.Err(); srcErr != nil {
		return 0, srcErr
	}
	if err != nil {
		return 0, fmt.Errorf("%w: copy into %s: %v", domain.ErrLoad, req.Table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", domain.ErrLoad, err)
	}
	slog.Info("warehouse load finished", "source", req.Source, "table", req.Table.String(), "rows", n, "mode", l.mode)
	return n, nil
}

func columnNames(cols []domain.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func createTableSQL(table pgx.Identifier, cols []domain.Column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = pgx.Identifier{c.Name}.Sanitize() + " " + sqlType(c.Type)
	}
	return "CREATE TABLE IF NOT EXISTS " + table.Sanitize() + " (" + strings.Join(defs, ", ") + ")"
}

func sqlType(t domain.ColumnType) string {
	switch t {
	case domain.ColumnInt:
		return "BIGINT"
	case domain.ColumnFloat:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

package fetchbun

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/loadplane/go-entity-cache/batch"
)

// KeyFunc extracts the batch key from a fetched row.
type KeyFunc[V any] func(*V) string

// AlignByKey reorders rows to match the requested key order. Keys without a
// matching row get a nil slot; duplicate keys share the same row.
func AlignByKey[V any](keys []string, rows []*V, keyOf KeyFunc[V]) []*V {
	byKey := make(map[string]*V, len(rows))
	for _, row := range rows {
		if row != nil {
			byKey[keyOf(row)] = row
		}
	}
	out := make([]*V, len(keys))
	for i, key := range keys {
		out[i] = byKey[key]
	}
	return out
}

// NewFetchFunc builds a batch fetch function that loads rows of V from db
// with one IN query over keyColumn.
func NewFetchFunc[V any](db bun.IDB, keyColumn string, keyOf KeyFunc[V]) batch.FetchFunc[string, V] {
	return func(ctx context.Context, keys []string) ([]*V, error) {
		if len(keys) == 0 {
			return nil, nil
		}
		var rows []*V
		err := db.NewSelect().
			Model(&rows).
			Where("? IN (?)", bun.Ident(keyColumn), bun.In(keys)).
			Scan(ctx)
		if err != nil {
			return nil, err
		}
		return AlignByKey(keys, rows, keyOf), nil
	}
}

// NewRepositoryFetchFunc builds a batch fetch function on top of a
// go-repository-bun repository, using its raw query path for the IN query.
func NewRepositoryFetchFunc[V any](repo repository.Repository[V], table, keyColumn string, keyOf KeyFunc[V]) batch.FetchFunc[string, V] {
	return func(ctx context.Context, keys []string) ([]*V, error) {
		if len(keys) == 0 {
			return nil, nil
		}
		records, err := repo.Raw(ctx,
			"SELECT * FROM ? WHERE ? IN (?)",
			bun.Ident(table), bun.Ident(keyColumn), bun.In(keys),
		)
		if err != nil {
			return nil, err
		}
		rows := make([]*V, len(records))
		for i := range records {
			rows[i] = &records[i]
		}
		return AlignByKey(keys, rows, keyOf), nil
	}
}

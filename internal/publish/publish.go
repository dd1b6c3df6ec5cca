// Package publish copies the CSV tables into Postgres so the site can read
// them from a database instead of the data directory.
package publish

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/comparethewait/ctw/internal/store"
	"github.com/comparethewait/ctw/pkg/models"
)

// Config holds the connection settings
type Config struct {
	DSN         string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
}

// Counts is the number of rows upserted per table
type Counts map[string]int

// Publisher upserts datasets through a pgx pool
type Publisher struct {
	pool *pgxpool.Pool
}

// Connect opens the pool and checks the connection
func Connect(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLife > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLife
	}
	if cfg.MaxConnIdle > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdle
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Publisher{pool: pool}, nil
}

// Close releases the pool
func (p *Publisher) Close() {
	p.pool.Close()
}

// EnsureSchema creates the tables that do not exist yet
func (p *Publisher) EnsureSchema(ctx context.Context) error {
	for _, t := range tables {
		if _, err := p.pool.Exec(ctx, t.createSQL()); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
	}
	return nil
}

// Publish upserts every table of ds in a single transaction. Either all
// tables are written or none are.
func (p *Publisher) Publish(ctx context.Context, ds *store.Dataset) (Counts, error) {
	counts := make(Counts, len(tables))

	err := p.transaction(ctx, func(tx pgx.Tx) error {
		for _, t := range tables {
			rows := t.rows(ds)
			if len(rows) == 0 {
				counts[t.name] = 0
				continue
			}

			query := t.upsertSQL()
			batch := &pgx.Batch{}
			for _, args := range rows {
				batch.Queue(query, args...)
			}

			br := tx.SendBatch(ctx, batch)
			for i := range rows {
				if _, err := br.Exec(); err != nil {
					br.Close()
					return fmt.Errorf("failed to upsert %s row %d: %w", t.name, i+1, err)
				}
			}
			if err := br.Close(); err != nil {
				return fmt.Errorf("failed to upsert %s: %w", t.name, err)
			}

			counts[t.name] = len(rows)
			log.Debug().Str("table", t.name).Int("rows", len(rows)).Msg("Table upserted")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// transaction runs fn in a transaction, rolling back when it fails
func (p *Publisher) transaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				err = fmt.Errorf("tx rollback failed: %v (original error: %w)", rbErr, err)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type column struct {
	name string
	typ  string
}

type table struct {
	name    string
	columns []column
	keys    []string
	rows    func(ds *store.Dataset) [][]any
}

// tables lists the six tables in dependency order. Column names and order
// follow the CSV headers.
var tables = []table{
	{
		name: "procedures",
		columns: []column{
			{"procedure_id", "text NOT NULL"},
			{"name", "text NOT NULL"},
			{"specialty", "text"},
			{"description", "text"},
			{"nhs_code", "text"},
		},
		keys: []string{"procedure_id"},
		rows: func(ds *store.Dataset) [][]any { return rowArgs(ds.Procedures) },
	},
	{
		name: "cities",
		columns: []column{
			{"city", "text NOT NULL"},
			{"region", "text NOT NULL"},
			{"nhs_region_code", "text"},
		},
		keys: []string{"city"},
		rows: func(ds *store.Dataset) [][]any { return rowArgs(ds.Cities) },
	},
	{
		name: "nhs_waits",
		columns: []column{
			{"procedure_id", "text NOT NULL"},
			{"city", "text NOT NULL"},
			{"avg_wait_weeks", "double precision NOT NULL"},
			{"min_wait_weeks", "double precision"},
			{"max_wait_weeks", "double precision"},
			{"trust", "text"},
			{"source", "text NOT NULL"},
			{"source_url", "text"},
			{"last_updated", "date NOT NULL"},
		},
		keys: []string{"procedure_id", "city"},
		rows: func(ds *store.Dataset) [][]any { return rowArgs(ds.NHSWaits) },
	},
	{
		name: "private_costs",
		columns: []column{
			{"procedure_id", "text NOT NULL"},
			{"city", "text NOT NULL"},
			{"cost_min", "double precision NOT NULL"},
			{"cost_max", "double precision NOT NULL"},
			{"currency", "text NOT NULL"},
			{"provider_count", "integer NOT NULL DEFAULT 0"},
			{"source", "text NOT NULL"},
			{"source_url", "text"},
			{"last_updated", "date NOT NULL"},
		},
		keys: []string{"procedure_id", "city"},
		rows: func(ds *store.Dataset) [][]any { return rowArgs(ds.PrivateCosts) },
	},
	{
		name: "clinics",
		columns: []column{
			{"clinic_id", "text NOT NULL"},
			{"procedure_id", "text NOT NULL"},
			{"city", "text NOT NULL"},
			{"name", "text NOT NULL"},
			{"address", "text"},
			{"postcode", "text"},
			{"phone", "text"},
			{"website", "text"},
			{"price_from", "double precision"},
			{"rating", "double precision"},
			{"source", "text NOT NULL"},
			{"last_updated", "date NOT NULL"},
		},
		keys: []string{"procedure_id", "clinic_id"},
		rows: func(ds *store.Dataset) [][]any { return rowArgs(ds.Clinics) },
	},
	{
		name: "faq",
		columns: []column{
			{"procedure_id", "text NOT NULL"},
			{"question", "text NOT NULL"},
			{"answer", "text NOT NULL"},
		},
		keys: []string{"procedure_id", "question"},
		rows: func(ds *store.Dataset) [][]any { return rowArgs(ds.FAQs) },
	},
}

func (t table) columnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return names
}

func (t table) createSQL() string {
	defs := make([]string, 0, len(t.columns)+1)
	for _, c := range t.columns {
		defs = append(defs, c.name+" "+c.typ)
	}
	defs = append(defs, "PRIMARY KEY ("+strings.Join(t.keys, ", ")+")")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.name, strings.Join(defs, ",\n\t"))
}

// upsertSQL inserts one row and, on a natural key conflict, overwrites
// every non-key column
func (t table) upsertSQL() string {
	names := t.columnNames()
	placeholders := make([]string, len(names))
	for i := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	isKey := make(map[string]bool, len(t.keys))
	for _, k := range t.keys {
		isKey[k] = true
	}
	var sets []string
	for _, n := range names {
		if !isKey[n] {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", n, n))
		}
	}

	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		t.name,
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(t.keys, ", "),
		action,
	)
}

// rowArgs converts rows into query arguments in csv column order. Nil
// pointers become NULL and last_updated dates are sent as time values.
func rowArgs[T any](rows []T) [][]any {
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		v := reflect.ValueOf(row)
		t := v.Type()
		args := make([]any, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			col := t.Field(i).Tag.Get("csv")
			if col == "" || col == "-" {
				continue
			}
			args = append(args, argValue(col, v.Field(i)))
		}
		out = append(out, args)
	}
	return out
}

func argValue(col string, f reflect.Value) any {
	switch f.Kind() {
	case reflect.Pointer:
		if f.IsNil() {
			return nil
		}
		return f.Elem().Interface()
	case reflect.String:
		s := f.String()
		if col == "last_updated" {
			d, err := time.Parse(models.DateLayout, s)
			if err != nil {
				return nil
			}
			return d
		}
		return s
	default:
		return f.Interface()
	}
}

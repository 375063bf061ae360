package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"github.com/roach88/provenance/internal/graph"
)

// PostgresConfig holds libpq connection parameters.
type PostgresConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     string `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Database string `yaml:"database" json:"database"`
	Password string `yaml:"password" json:"password"`
}

// PostgresConfigFromEnv reads the standard PG* variables with local
// defaults.
func PostgresConfigFromEnv() PostgresConfig {
	return PostgresConfig{
		Host:     getEnv("PGHOST", "127.0.0.1"),
		Port:     getEnv("PGPORT", "5432"),
		User:     getEnv("PGUSER", "provenance"),
		Database: getEnv("PGDATABASE", "provenance"),
		Password: os.Getenv("PGPASSWORD"),
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// DSN returns the key/value connection string.
func (c PostgresConfig) DSN() string {
	if c.Password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Database)
}

// PostgresCache stores one row per graph.
type PostgresCache struct {
	db *sql.DB
}

// OpenPostgres connects and creates the table if needed.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresCache, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	c := &PostgresCache{db: db}
	if err := c.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create provenance_graphs table: %w", err)
	}
	return c, nil
}

func (c *PostgresCache) createTable(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS provenance_graphs (
			id         TEXT PRIMARY KEY,
			descriptor JSONB NOT NULL,
			dump       BYTEA NOT NULL,
			checksum   TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_provenance_graphs_updated ON provenance_graphs(updated_at DESC);
	`)
	return err
}

func (c *PostgresCache) List(ctx context.Context) ([]graph.Descriptor, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT descriptor FROM provenance_graphs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	defer rows.Close()

	var out []graph.Descriptor
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("list graphs: %w", err)
		}
		var desc graph.Descriptor
		if err := json.Unmarshal(raw, &desc); err != nil {
			return nil, fmt.Errorf("list graphs: descriptor: %w", err)
		}
		out = append(out, desc)
	}
	return out, rows.Err()
}

func (c *PostgresCache) Load(ctx context.Context, id string) (graph.Descriptor, *graph.Dump, error) {
	var rawDesc, data []byte
	var checksum string
	err := c.db.QueryRowContext(ctx,
		`SELECT descriptor, dump, checksum FROM provenance_graphs WHERE id = $1`, id,
	).Scan(&rawDesc, &data, &checksum)
	if err == sql.ErrNoRows {
		return graph.Descriptor{}, nil, fmt.Errorf("load %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return graph.Descriptor{}, nil, fmt.Errorf("load %s: %w", id, err)
	}

	var desc graph.Descriptor
	if err := json.Unmarshal(rawDesc, &desc); err != nil {
		return graph.Descriptor{}, nil, fmt.Errorf("load %s: descriptor: %w", id, err)
	}
	d, err := decodeVerified(id, data, checksum)
	if err != nil {
		return graph.Descriptor{}, nil, err
	}
	return desc, d, nil
}

func (c *PostgresCache) Save(ctx context.Context, desc graph.Descriptor, d *graph.Dump) error {
	rawDesc, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("save %s: descriptor: %w", desc.ID, err)
	}
	data, err := graph.EncodeDump(d)
	if err != nil {
		return fmt.Errorf("save %s: %w", desc.ID, err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO provenance_graphs (id, descriptor, dump, checksum, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			descriptor = EXCLUDED.descriptor,
			dump = EXCLUDED.dump,
			checksum = EXCLUDED.checksum,
			updated_at = EXCLUDED.updated_at
	`, desc.ID, rawDesc, data, Checksum(data))
	if err != nil {
		return fmt.Errorf("save %s: %w", desc.ID, err)
	}
	return nil
}

func (c *PostgresCache) Delete(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM provenance_graphs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	return nil
}

// Close closes the database connection.
func (c *PostgresCache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

var _ DataCache = (*PostgresCache)(nil)

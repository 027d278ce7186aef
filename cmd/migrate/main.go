package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"

	"github.com/zapline/zapline/internal/config"
)

// executor abstrai o banco para o loop de migrations rodar igual nos dois
// drivers.
type executor interface {
	ensureTable(ctx context.Context) error
	applied(ctx context.Context, version string) (bool, error)
	exec(ctx context.Context, script string) error
	record(ctx context.Context, version string) error
	close()
}

func main() {
	pgDir := flag.String("migrations", "db/migrations/postgres", "Diretório de migrations PostgreSQL")
	liteDir := flag.String("migrations-sqlite", "db/migrations/sqlite", "Diretório de migrations SQLite")
	flag.Parse()

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var (
		ex  executor
		dir string
		err error
	)
	switch cfg.Storage.Driver {
	case "sqlite", "":
		ex, err = openSQLite(cfg.Storage.DataDir)
		dir = *liteDir
	case "postgres":
		ex, err = openPostgres(ctx, cfg.DB.DSN())
		dir = *pgDir
	default:
		log.Fatalf("migrate: driver desconhecido: %s", cfg.Storage.Driver)
	}
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	defer ex.close()

	if err := apply(ctx, ex, dir); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("migrate: concluído.")
}

// apply roda cada .up.sql pendente em ordem lexical e registra a versão em
// schema_migrations.
func apply(ctx context.Context, ex executor, dir string) error {
	if err := ex.ensureTable(ctx); err != nil {
		return fmt.Errorf("preparar schema_migrations: %w", err)
	}

	files, err := listMigrations(dir)
	if err != nil {
		return fmt.Errorf("listar %s: %w", dir, err)
	}
	if len(files) == 0 {
		log.Printf("migrate: nada a aplicar em %s", dir)
		return nil
	}

	for _, file := range files {
		version := filepath.Base(file)
		done, err := ex.applied(ctx, version)
		if err != nil {
			return fmt.Errorf("consultar %s: %w", version, err)
		}
		if done {
			continue
		}

		script, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("ler %s: %w", version, err)
		}
		log.Printf("migrate: aplicando %s", version)
		if err := ex.exec(ctx, string(script)); err != nil {
			return fmt.Errorf("executar %s: %w", version, err)
		}
		if err := ex.record(ctx, version); err != nil {
			return fmt.Errorf("registrar %s: %w", version, err)
		}
	}
	return nil
}

func listMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

type sqliteExec struct {
	db *sql.DB
}

func openSQLite(dataDir string) (*sqliteExec, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("criar %s: %w", dataDir, err)
	}
	path := filepath.Join(dataDir, "zapline.db")
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("abrir %s: %w", path, err)
	}
	log.Printf("migrate: sqlite em %s", path)
	return &sqliteExec{db: db}, nil
}

func (s *sqliteExec) ensureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`)
	return err
}

func (s *sqliteExec) applied(ctx context.Context, version string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&n)
	return n > 0, err
}

func (s *sqliteExec) exec(ctx context.Context, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteExec) record(ctx context.Context, version string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version)
	return err
}

func (s *sqliteExec) close() { s.db.Close() }

type pgExec struct {
	pool *pgxpool.Pool
}

func openPostgres(ctx context.Context, dsn string) (*pgExec, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("conectar: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	log.Println("migrate: postgres conectado")
	return &pgExec{pool: pool}, nil
}

func (p *pgExec) ensureTable(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func (p *pgExec) applied(ctx context.Context, version string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&exists)
	return exists, err
}

func (p *pgExec) exec(ctx context.Context, script string) error {
	execCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	_, err := p.pool.Exec(execCtx, script)
	return err
}

func (p *pgExec) record(ctx context.Context, version string) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
	return err
}

func (p *pgExec) close() { p.pool.Close() }

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const dbFile = "zapline.db"

type DB struct {
	Conn *sql.DB
	log  *zap.Logger
}

// New abre (ou cria) o arquivo do banco dentro de dataDir. WAL permite
// leituras concorrentes com a escrita; foreign_keys precisa ser ligado por
// conexão porque o sqlite desliga por padrão.
func New(dataDir string, log *zap.Logger) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: diretório %s: %w", dataDir, err)
	}
	path := filepath.Join(dataDir, dbFile)

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: abrir %s: %w", path, err)
	}

	// Uma única conexão de escrita evita SQLITE_BUSY sob carga.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	log.Info("sqlite: banco aberto", zap.String("path", path))

	return &DB{Conn: conn, log: log}, nil
}

func (db *DB) Close() error {
	if db.Conn != nil {
		return db.Conn.Close()
	}
	return nil
}

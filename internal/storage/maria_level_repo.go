package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/annel0/blockroll/internal/level"
)

// MariaLevelRepo реализует LevelRepo для базы данных MariaDB/MySQL.
// Уровень хранится JSON-документом в таблице levels.
type MariaLevelRepo struct {
	db *sql.DB
}

// NewMariaLevelRepo создает новый репозиторий уровней для MariaDB.
// Автоматически создает таблицу, если она не существует.
//
// dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
func NewMariaLevelRepo(dsn string) (*MariaLevelRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaLevelRepo{db: db}
	if err := repo.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}

	return repo, nil
}

// createTable создает таблицу levels, если она не существует.
func (r *MariaLevelRepo) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS levels (
			id         VARCHAR(128) PRIMARY KEY,
			name       VARCHAR(255) NOT NULL DEFAULT '',
			document   MEDIUMTEXT   NOT NULL,
			updated_at TIMESTAMP    DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE    CURRENT_TIMESTAMP
		) ENGINE=InnoDB
	`

	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("ошибка создания таблицы levels: %w", err)
	}
	return nil
}

func (r *MariaLevelRepo) Get(ctx context.Context, id string) (*level.Level, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, `SELECT document FROM levels WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("level %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки уровня %s: %w", id, err)
	}

	var lvl level.Level
	if err := json.Unmarshal([]byte(doc), &lvl); err != nil {
		return nil, fmt.Errorf("ошибка десериализации уровня %s: %w", id, err)
	}
	return &lvl, nil
}

func (r *MariaLevelRepo) List(ctx context.Context) ([]*level.Level, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT document FROM levels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения уровней: %w", err)
	}
	defer rows.Close()

	out := []*level.Level{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var lvl level.Level
		if err := json.Unmarshal([]byte(doc), &lvl); err != nil {
			return nil, err
		}
		out = append(out, &lvl)
	}
	return out, rows.Err()
}

// Save использует INSERT ... ON DUPLICATE KEY UPDATE для обновления существующих записей.
func (r *MariaLevelRepo) Save(ctx context.Context, lvl *level.Level) error {
	if err := lvl.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(lvl)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO levels (id, name, document)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			document = VALUES(document),
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.ExecContext(ctx, query, lvl.ID, lvl.Name, string(doc)); err != nil {
		return fmt.Errorf("ошибка сохранения уровня %s: %w", lvl.ID, err)
	}
	return nil
}

func (r *MariaLevelRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM levels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления уровня %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения количества затронутых строк: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("level %q: %w", id, ErrNotFound)
	}
	return nil
}

// Close закрывает соединение с базой данных.
func (r *MariaLevelRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

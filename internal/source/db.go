package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"ecommerce-events/internal/config"
)

// Open connects to the source database. The connection is shared by
// all pollers and used for read-only SELECTs.
func Open(cfg config.MySQLConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL server: %w", err)
	}

	return db, nil
}

// changesQuery appends the watermark predicate, ordering and batch
// limit to a base SELECT. An unset watermark scans from the beginning.
// cond is an optional extra predicate (e.g. "p.is_active = 1").
func changesQuery(base, modifiedCol, cond string, since time.Time, limit int) (string, []any) {
	query := base
	args := make([]any, 0, 2)

	where := ""
	if cond != "" {
		where = " WHERE " + cond
	}
	if !since.IsZero() {
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += modifiedCol + " > ?"
		args = append(args, since)
	}

	query += where + " ORDER BY " + modifiedCol + " ASC LIMIT ?"
	args = append(args, limit)
	return query, args
}

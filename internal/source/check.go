package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Checker validates the source connection, privileges and the schema
// of the monitored tables before any poller starts. A hard failure
// here is the only fatal error class in the process.
type Checker struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewChecker(db *sql.DB, logger *logrus.Logger) *Checker {
	return &Checker{db: db, logger: logger}
}

// Check verifies privileges and that every monitored table exists with
// created_at/updated_at columns. When binlog is set, it additionally
// verifies the replication grants and binlog settings the watcher
// needs.
func (c *Checker) Check(ctx context.Context, database string, tables []string, binlog bool) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to MySQL server: %w", err)
	}
	c.logger.Info("Successfully connected to MySQL server")

	required := []string{"SELECT"}
	if binlog {
		required = append(required, "REPLICATION SLAVE", "REPLICATION CLIENT")
	}
	if err := c.checkGrants(ctx, required); err != nil {
		return err
	}

	for _, table := range tables {
		if err := c.checkTable(ctx, database, table); err != nil {
			return err
		}
	}

	if binlog {
		if err := c.checkBinlog(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (c *Checker) checkGrants(ctx context.Context, required []string) error {
	var allGrants strings.Builder
	rows, err := c.db.QueryContext(ctx, "SHOW GRANTS FOR CURRENT_USER()")
	if err != nil {
		// MySQL 5.6 fallback
		rows, err = c.db.QueryContext(ctx, "SHOW GRANTS")
		if err != nil {
			return fmt.Errorf("failed to check grants: %w", err)
		}
	}
	defer rows.Close()

	for rows.Next() {
		var grant string
		if err := rows.Scan(&grant); err != nil {
			return fmt.Errorf("failed to scan grant: %w", err)
		}
		if allGrants.Len() > 0 {
			allGrants.WriteString("; ")
		}
		allGrants.WriteString(grant)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating grants: %w", err)
	}

	grantsUpper := strings.ToUpper(allGrants.String())
	var missing []string
	for _, priv := range required {
		// ALL PRIVILEGES covers everything
		if !strings.Contains(grantsUpper, priv) && !strings.Contains(grantsUpper, "ALL PRIVILEGES") {
			missing = append(missing, priv)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required permissions: %s", strings.Join(missing, ", "))
	}

	c.logger.Info("All required permissions verified")
	return nil
}

// checkTable verifies the table exists and carries the timestamp
// columns the watermark query depends on. It also warns when
// updated_at has no index, since every poll filters and orders on it.
func (c *Checker) checkTable(ctx context.Context, database, table string) error {
	rows, err := c.db.QueryContext(ctx, `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`, database, table)
	if err != nil {
		return fmt.Errorf("failed to query column info for %s: %w", table, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		columns[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating columns: %w", err)
	}

	if len(columns) == 0 {
		return fmt.Errorf("monitored table %s.%s does not exist", database, table)
	}
	for _, col := range []string{"created_at", "updated_at"} {
		if !columns[col] {
			return fmt.Errorf("table %s.%s is missing required column %s", database, table, col)
		}
	}

	var indexed int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND COLUMN_NAME = 'updated_at'
	`, database, table).Scan(&indexed)
	if err != nil {
		c.logger.Warnf("Could not verify index on %s.updated_at: %v", table, err)
	} else if indexed == 0 {
		c.logger.Warnf("Table %s has no index on updated_at; polling will full-scan", table)
	}

	c.logger.Infof("Verified monitored table %s.%s", database, table)
	return nil
}

func (c *Checker) checkBinlog(ctx context.Context) error {
	var logBin string
	if err := c.db.QueryRowContext(ctx, "SELECT @@log_bin").Scan(&logBin); err != nil {
		return fmt.Errorf("could not verify binlog status: %w", err)
	}
	if logBin != "1" && !strings.EqualFold(logBin, "ON") {
		return fmt.Errorf("binary logging (log_bin) is not enabled, current value: %s", logBin)
	}
	c.logger.Info("Binary logging is enabled")

	var format string
	if err := c.db.QueryRowContext(ctx, "SELECT @@binlog_format").Scan(&format); err == nil {
		if format != "ROW" {
			c.logger.Warnf("binlog_format is '%s'; ROW format is recommended for the binlog watcher", format)
		}
	}
	return nil
}

package binlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/sirupsen/logrus"

	"ecommerce-events/internal/config"
)

// Notifier tails the MySQL binlog and nudges table pollers ahead of
// their next tick when a row in their table changes. It never reads
// row data; the polling query stays the single source of truth, so
// watermark and ordering semantics are unchanged. It always starts
// from the current master position and keeps no position file.
type Notifier struct {
	syncer   *replication.BinlogSyncer
	streamer *replication.BinlogStreamer
	watches  map[string]chan struct{} // "database.table" -> wake signal
	logger   *logrus.Logger
}

func NewNotifier(db *sql.DB, mysqlCfg config.MySQLConfig, cfg config.BinlogConfig, logger *logrus.Logger) (*Notifier, error) {
	pos, err := masterPosition(db)
	if err != nil {
		return nil, err
	}

	syncer := replication.NewBinlogSyncer(replication.BinlogSyncerConfig{
		ServerID: cfg.ServerID,
		Flavor:   cfg.Flavor,
		Host:     mysqlCfg.Host,
		Port:     uint16(mysqlCfg.Port),
		User:     mysqlCfg.User,
		Password: mysqlCfg.Password,
	})

	streamer, err := syncer.StartSync(pos)
	if err != nil {
		syncer.Close()
		return nil, fmt.Errorf("failed to start binlog sync: %w", err)
	}

	logger.Infof("Binlog watcher started at %s:%d", pos.Name, pos.Pos)

	return &Notifier{
		syncer:   syncer,
		streamer: streamer,
		watches:  make(map[string]chan struct{}),
		logger:   logger,
	}, nil
}

// masterPosition reads the server's current binlog position. The
// column set of SHOW MASTER STATUS varies across MySQL versions, so
// extra columns are scanned into throwaway buffers.
func masterPosition(db *sql.DB) (mysql.Position, error) {
	rows, err := db.Query("SHOW MASTER STATUS")
	if err != nil {
		return mysql.Position{}, fmt.Errorf("failed to read master status: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return mysql.Position{}, fmt.Errorf("failed to read master status columns: %w", err)
	}
	if !rows.Next() {
		return mysql.Position{}, fmt.Errorf("master status returned no rows; is binary logging enabled?")
	}

	var (
		file string
		pos  uint32
	)
	dest := make([]any, len(cols))
	dest[0] = &file
	dest[1] = &pos
	for i := 2; i < len(cols); i++ {
		dest[i] = new(sql.RawBytes)
	}
	if err := rows.Scan(dest...); err != nil {
		return mysql.Position{}, fmt.Errorf("failed to scan master status: %w", err)
	}

	return mysql.Position{Name: file, Pos: pos}, nil
}

// Watch registers a table and returns its wake channel. Must be called
// before Run; the map is read-only afterwards. The channel has a
// one-slot buffer so a burst of row events collapses into one nudge.
func (n *Notifier) Watch(database, table string) <-chan struct{} {
	ch := make(chan struct{}, 1)
	n.watches[database+"."+table] = ch
	return ch
}

// Run consumes binlog events until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	n.logger.Info("Starting binlog watcher...")

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("Stopped binlog watcher")
			return
		default:
		}

		eventCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		event, err := n.streamer.GetEvent(eventCtx)
		cancel()
		if err != nil {
			// Some syncer paths wrap the context error in a plain
			// message, so match on text as well.
			if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "context deadline exceeded") {
				// No events within the window; keep waiting.
				continue
			}
			if errors.Is(err, context.Canceled) {
				n.logger.Info("Stopped binlog watcher")
				return
			}
			n.logger.Errorf("Error reading binlog event: %v", err)
			time.Sleep(1 * time.Second)
			continue
		}

		switch e := event.Event.(type) {
		case *replication.RowsEvent:
			key := string(e.Table.Schema) + "." + string(e.Table.Table)
			if ch, ok := n.watches[key]; ok {
				select {
				case ch <- struct{}{}:
					n.logger.Debugf("Row change on %s, nudging poller", key)
				default:
					// A nudge is already pending.
				}
			}
		case *replication.RotateEvent:
			n.logger.Debugf("Binlog rotated to: %s", string(e.NextLogName))
		default:
		}
	}
}

// Close stops the underlying syncer.
func (n *Notifier) Close() {
	if n.syncer != nil {
		n.syncer.Close()
	}
}

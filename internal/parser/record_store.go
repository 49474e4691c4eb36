package parser

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/ud7-tracker/backend/internal/logger"
	"github.com/ud7-tracker/backend/internal/models"
)

// StoreOptions tunes the DuckDB connection behind a RecordStore.
type StoreOptions struct {
	MemoryLimit string // e.g. "512MB"
	Threads     int
	BatchSize   int
}

// DefaultStoreOptions mirrors the config defaults.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{MemoryLimit: "512MB", Threads: 2, BatchSize: 10000}
}

// RecordStore keeps a merged HMI log in a temporary DuckDB file so a session
// can be browsed page by page and re-analyzed without re-reading the CSVs.
type RecordStore struct {
	db        *sql.DB
	dbPath    string
	count     int
	batchSize int
	batch     []models.LogRecord
	minTs     time.Time
	maxTs     time.Time
	querySem  chan struct{}
}

// RecordQuery filters a page of stored records.
type RecordQuery struct {
	Event  string // case-insensitive substring of the event text
	Start  *time.Time
	End    *time.Time
	Offset int
	Limit  int
}

// EventCount is the number of records carrying one event text.
type EventCount struct {
	Event string `json:"event"`
	Count int    `json:"count"`
}

// NewRecordStore creates a session store in dir.
func NewRecordStore(dir, sessionID string, opts StoreOptions) (*RecordStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	dbPath := filepath.Join(dir, fmt.Sprintf("session_%s.duckdb", sessionID))
	log := logger.L()
	log.Debugf("[RecordStore] Creating database at: %s", dbPath)

	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultStoreOptions().BatchSize
	}
	pragmas := []string{"PRAGMA enable_progress_bar=false"}
	if opts.MemoryLimit != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit))
	}
	if opts.Threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
	}

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE records (
			position  INTEGER PRIMARY KEY,
			source    VARCHAR NOT NULL,
			line      INTEGER NOT NULL,
			ts        BIGINT NOT NULL,
			raw_ts    VARCHAR NOT NULL,
			event     VARCHAR NOT NULL,
			power     VARCHAR,
			current   VARCHAR,
			freq      VARCHAR
		)
	`)
	if err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &RecordStore{
		db:        db,
		dbPath:    dbPath,
		batchSize: opts.BatchSize,
		batch:     make([]models.LogRecord, 0, opts.BatchSize),
		querySem:  make(chan struct{}, 3),
	}, nil
}

// Append buffers one record and flushes full batches.
func (s *RecordStore) Append(rec models.LogRecord) error {
	if s.count == 0 || rec.Timestamp.Before(s.minTs) {
		s.minTs = rec.Timestamp
	}
	if rec.Timestamp.After(s.maxTs) {
		s.maxTs = rec.Timestamp
	}
	s.batch = append(s.batch, rec)
	s.count++

	if len(s.batch) >= s.batchSize {
		return s.flushBatch()
	}
	return nil
}

// AppendLog appends every record of a merged log.
func (s *RecordStore) AppendLog(merged *models.MergedLog) error {
	for _, rec := range merged.Records {
		if err := s.Append(rec); err != nil {
			return err
		}
	}
	return nil
}

// flushBatch writes the pending batch through the DuckDB Appender API.
func (s *RecordStore) flushBatch() error {
	if len(s.batch) == 0 {
		return nil
	}
	start := time.Now()

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}
		appender, err := duckdb.NewAppenderFromConn(dConn, "", "records")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		for _, rec := range s.batch {
			err := appender.AppendRow(
				int32(rec.Position),
				rec.Source,
				int32(rec.Line),
				rec.Timestamp.UnixMicro(),
				rec.RawTimestamp,
				rec.Event,
				rec.Power,
				rec.Current,
				rec.Frequency,
			)
			if err != nil {
				return fmt.Errorf("failed to append record %d: %w", rec.Position, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	logger.L().Debugf("[RecordStore] Flushed %d records in %v", len(s.batch), time.Since(start))
	s.batch = s.batch[:0]
	return nil
}

// Finalize flushes any remaining records and creates the timestamp index.
func (s *RecordStore) Finalize() error {
	if err := s.flushBatch(); err != nil {
		return err
	}
	if _, err := s.db.Exec("CREATE INDEX idx_ts ON records(ts)"); err != nil {
		return fmt.Errorf("idx_ts creation failed: %w", err)
	}
	return nil
}

// Len returns the total number of records.
func (s *RecordStore) Len() int {
	return s.count
}

// TimeRange returns the span of stored timestamps, or nil when empty.
func (s *RecordStore) TimeRange() *models.TimeRange {
	if s.count == 0 {
		return nil
	}
	return &models.TimeRange{Start: s.minTs, End: s.maxTs}
}

// Load reads every record back in merge order.
func (s *RecordStore) Load(ctx context.Context) ([]models.LogRecord, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	rows, err := s.db.QueryContext(ctx, selectRecords+" ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("load query failed: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows, s.count)
}

// Query returns one page of records matching q and the total match count.
func (s *RecordStore) Query(ctx context.Context, q RecordQuery) ([]models.LogRecord, int, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, 0, err
	}
	defer s.release()

	where, args := buildRecordWhere(q)

	var total int
	countQuery := "SELECT COUNT(*) FROM records" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count query failed: %w", err)
	}
	if total == 0 {
		return []models.LogRecord{}, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	query := selectRecords + where + fmt.Sprintf(" ORDER BY position LIMIT %d OFFSET %d", limit, offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows, limit)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// EventCounts tallies records per distinct event text, most frequent first.
func (s *RecordStore) EventCounts(ctx context.Context) ([]EventCount, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	rows, err := s.db.QueryContext(ctx,
		"SELECT event, COUNT(*) AS n FROM records GROUP BY event ORDER BY n DESC, event")
	if err != nil {
		return nil, fmt.Errorf("event count query failed: %w", err)
	}
	defer rows.Close()

	counts := make([]EventCount, 0)
	for rows.Next() {
		var ec EventCount
		if err := rows.Scan(&ec.Event, &ec.Count); err != nil {
			return nil, err
		}
		counts = append(counts, ec)
	}
	return counts, rows.Err()
}

// Close closes the database and removes the file.
func (s *RecordStore) Close() error {
	if s.db != nil {
		s.db.Close()
	}
	if s.dbPath != "" {
		os.Remove(s.dbPath)
		os.Remove(s.dbPath + ".wal")
	}
	return nil
}

// acquire limits concurrent queries against one store.
func (s *RecordStore) acquire(ctx context.Context) error {
	select {
	case s.querySem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RecordStore) release() {
	<-s.querySem
}

const selectRecords = `SELECT position, source, line, ts, raw_ts, event, power, current, freq FROM records`

// likeEscaper makes LIKE wildcards in a user filter match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func buildRecordWhere(q RecordQuery) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if q.Event != "" {
		conds = append(conds, `event ILIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(q.Event)+"%")
	}
	if q.Start != nil {
		conds = append(conds, "ts >= ?")
		args = append(args, q.Start.UnixMicro())
	}
	if q.End != nil {
		conds = append(conds, "ts <= ?")
		args = append(args, q.End.UnixMicro())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanRecords(rows *sql.Rows, capacity int) ([]models.LogRecord, error) {
	recs := make([]models.LogRecord, 0, capacity)
	for rows.Next() {
		var rec models.LogRecord
		var ts int64
		var power, current, freq sql.NullString
		if err := rows.Scan(&rec.Position, &rec.Source, &rec.Line, &ts, &rec.RawTimestamp,
			&rec.Event, &power, &current, &freq); err != nil {
			return nil, err
		}
		rec.Timestamp = time.UnixMicro(ts).UTC()
		rec.Power = power.String
		rec.Current = current.String
		rec.Frequency = freq.String
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

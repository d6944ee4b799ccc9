package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/h2smuggle/internal/model"
)

// FileName is the database file inside the database directory.
const FileName = "h2smuggle.db"

// timestampLayout sorts lexically in time order.
const timestampLayout = "2006-01-02 15:04:05.000000000"

// HistoryDB stores scan reports.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s: %w", dbPath, err)
		}
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	// mode=rw refuses to create a missing file
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return hdb, nil
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scan_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		port INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		report_json TEXT NOT NULL,
		vulnerable_count INTEGER NOT NULL DEFAULT 0,
		verdicts TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reports_target ON scan_reports(target);
	CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON scan_reports(timestamp);
	`
	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// SaveScanReport stores report and returns its id.
func (h *HistoryDB) SaveScanReport(ctx context.Context, report *model.ScanReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}
	verdictsJSON, err := json.Marshal(report.Verdicts())
	if err != nil {
		return 0, fmt.Errorf("failed to serialize verdicts: %w", err)
	}

	query := `
	INSERT INTO scan_reports (target, port, timestamp, report_json, vulnerable_count, verdicts)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := h.db.ExecContext(ctx, query,
		report.Target.Hostname,
		report.Target.Port,
		report.DateScanned.UTC().Format(timestampLayout),
		string(reportJSON),
		report.VulnerableCount(),
		string(verdictsJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save scan report: %w", err)
	}
	return result.LastInsertId()
}

// GetLatestScanReport returns the most recent report for hostname, or nil
// when the host was never scanned.
func (h *HistoryDB) GetLatestScanReport(ctx context.Context, hostname string) (*model.ScanReport, error) {
	query := `
	SELECT report_json FROM scan_reports
	WHERE target = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT 1
	`
	return h.queryReport(ctx, query, hostname)
}

// GetScanReportByID returns the report with the given id, or nil.
func (h *HistoryDB) GetScanReportByID(ctx context.Context, id int64) (*model.ScanReport, error) {
	return h.queryReport(ctx, `SELECT report_json FROM scan_reports WHERE id = ?`, id)
}

func (h *HistoryDB) queryReport(ctx context.Context, query string, args ...any) (*model.ScanReport, error) {
	var reportJSON string
	err := h.db.QueryRowContext(ctx, query, args...).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan report: %w", err)
	}

	var report model.ScanReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// GetScanHistory returns every report for hostname, newest first.
// Reports that no longer decode are skipped.
func (h *HistoryDB) GetScanHistory(ctx context.Context, hostname string) ([]*model.ScanReport, error) {
	query := `
	SELECT report_json FROM scan_reports
	WHERE target = ?
	ORDER BY timestamp DESC, id DESC
	`
	rows, err := h.db.QueryContext(ctx, query, hostname)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan history: %w", err)
	}
	defer rows.Close()

	var reports []*model.ScanReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		var report model.ScanReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			continue
		}
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}

// ScanReportMetadata summarizes a stored report without decoding it.
type ScanReportMetadata struct {
	ID              int64                  `json:"id"`
	Target          string                 `json:"target"`
	Port            int                    `json:"port"`
	Timestamp       time.Time              `json:"timestamp"`
	VulnerableCount int                    `json:"vulnerable_count"`
	Verdicts        map[model.ProbeID]bool `json:"verdicts"`
}

// GetScanHistoryWithMetadata returns report metadata for hostname, newest first.
func (h *HistoryDB) GetScanHistoryWithMetadata(ctx context.Context, hostname string) ([]ScanReportMetadata, error) {
	query := `
	SELECT id, target, port, timestamp, vulnerable_count, verdicts
	FROM scan_reports
	WHERE target = ?
	ORDER BY timestamp DESC, id DESC
	`
	rows, err := h.db.QueryContext(ctx, query, hostname)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan history: %w", err)
	}
	defer rows.Close()

	var results []ScanReportMetadata
	for rows.Next() {
		var meta ScanReportMetadata
		var timestamp string
		var verdicts sql.NullString
		if err := rows.Scan(&meta.ID, &meta.Target, &meta.Port, &timestamp, &meta.VulnerableCount, &verdicts); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta.Timestamp = parseTimestamp(timestamp)
		meta.Verdicts = make(map[model.ProbeID]bool)
		if verdicts.Valid && verdicts.String != "" {
			if err := json.Unmarshal([]byte(verdicts.String), &meta.Verdicts); err != nil {
				meta.Verdicts = make(map[model.ProbeID]bool)
			}
		}
		results = append(results, meta)
	}
	return results, rows.Err()
}

// TargetSummary describes one scanned host.
type TargetSummary struct {
	Target     string    `json:"target"`
	ScanCount  int       `json:"scan_count"`
	LastScan   time.Time `json:"last_scan"`
	Vulnerable int       `json:"vulnerable"`
}

// ListScannedTargets returns every scanned host in name order with the
// vulnerable count of its most recently saved scan.
func (h *HistoryDB) ListScannedTargets(ctx context.Context) ([]TargetSummary, error) {
	query := `
	SELECT r.target, c.scans, r.timestamp, r.vulnerable_count
	FROM scan_reports r
	JOIN (
		SELECT target, COUNT(*) AS scans, MAX(id) AS last_id
		FROM scan_reports
		GROUP BY target
	) c ON r.id = c.last_id
	ORDER BY r.target
	`
	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []TargetSummary
	for rows.Next() {
		var s TargetSummary
		var timestamp string
		if err := rows.Scan(&s.Target, &s.ScanCount, &timestamp, &s.Vulnerable); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		s.LastScan = parseTimestamp(timestamp)
		targets = append(targets, s)
	}
	return targets, rows.Err()
}

// DeleteScanHistory removes every report of hostname and returns how many
// were removed.
func (h *HistoryDB) DeleteScanHistory(ctx context.Context, hostname string) (int64, error) {
	result, err := h.db.ExecContext(ctx, `DELETE FROM scan_reports WHERE target = ?`, hostname)
	if err != nil {
		return 0, fmt.Errorf("failed to delete scan history: %w", err)
	}
	return result.RowsAffected()
}

// timestampFormats are tried in order by parseTimestamp.
var timestampFormats = []string{
	timestampLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC()
	}
	return time.Time{}
}

package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	models "form4-sentinel/database/models_pkg"
)

// InsiderRepository handles database operations for insider trading data.
// The transactions table is append-only at the logical level: duplicate
// inserts against the identity key are silent no-ops, never errors.
type InsiderRepository struct {
	db *Database

	// Now is injectable for deterministic date cutoffs in tests.
	Now func() time.Time
}

// NewInsiderRepository creates a new insider repository
func NewInsiderRepository(db *Database) *InsiderRepository {
	return &InsiderRepository{db: db, Now: time.Now}
}

// Ping reports whether the underlying connection is alive.
func (r *InsiderRepository) Ping() error {
	return r.db.Ping()
}

// today returns the current UTC calendar date at midnight.
func (r *InsiderRepository) today() time.Time {
	t := r.Now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// InitSchema performs auto-migration and TimescaleDB setup
func (r *InsiderRepository) InitSchema() error {
	fmt.Println("🔄 Starting database schema initialization...")

	// Drop the continuous aggregate first so the base table can be altered.
	// TimescaleDB locks columns referenced by continuous aggregates.
	if err := r.db.db.Exec("DROP MATERIALIZED VIEW IF EXISTS insider_profiles_daily CASCADE").Error; err != nil {
		fmt.Printf("⚠️ Warning: Failed to drop view insider_profiles_daily: %v\n", err)
	}

	// Create insider_transactions manually before converting it to a
	// hypertable. GORM AutoMigrate struggles with hypertables, so the
	// time-series table is managed by hand (the PK must include the
	// partition column).
	if err := r.db.db.Exec(`
		CREATE TABLE IF NOT EXISTS insider_transactions (
			id BIGSERIAL,
			ticker VARCHAR(10) NOT NULL,
			insider_name TEXT NOT NULL,
			insider_title TEXT,
			is_officer BOOLEAN DEFAULT FALSE,
			is_director BOOLEAN DEFAULT FALSE,
			transaction_date DATE NOT NULL,
			transaction_code VARCHAR(1) NOT NULL,
			shares DOUBLE PRECISION NOT NULL,
			price_per_share DOUBLE PRECISION,
			total_value DOUBLE PRECISION,
			shares_owned_after DOUBLE PRECISION,
			is_10b5_1 BOOLEAN DEFAULT FALSE,
			filing_date DATE NOT NULL,
			PRIMARY KEY (id, transaction_date)
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create insider_transactions table: %w", err)
	}

	// Transaction identity: upserts deduplicate against this key.
	r.db.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_insider_tx_identity
		ON insider_transactions (ticker, insider_name, transaction_date, shares, transaction_code)
	`)
	r.db.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_insider_tx_ticker_date
		ON insider_transactions (ticker, transaction_date DESC)
	`)

	// Auto-migrate the plain append tables.
	err := r.db.db.AutoMigrate(
		// &models.InsiderTransaction{}, // Managed manually above
		&models.InsiderAnomaly{},
		&models.InsiderAlert{},
		&models.MonitorWatermark{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	if err := r.setupTimescaleDB(); err != nil {
		return err
	}

	fmt.Println("✅ Database schema initialization completed successfully")
	return nil
}

// setupTimescaleDB creates hypertables, the profile continuous aggregate and
// its refresh policy.
func (r *InsiderRepository) setupTimescaleDB() error {
	fmt.Println("⏰ Setting up TimescaleDB extension and hypertables...")

	if err := r.db.db.Exec("CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE").Error; err != nil {
		return fmt.Errorf("failed to create TimescaleDB extension: %w", err)
	}
	fmt.Println("✅ TimescaleDB extension enabled")

	// Form 4 history is queried over multi-year lookbacks; monthly chunks
	// keep the chunk count reasonable.
	r.db.db.Exec(`
		SELECT create_hypertable('insider_transactions', 'transaction_date',
			chunk_time_interval => INTERVAL '1 month',
			if_not_exists => TRUE
		)
	`)

	// Anomalies are derived and re-creatable from stored history.
	r.db.db.Exec(`
		SELECT create_hypertable('insider_anomalies', 'detected_at',
			chunk_time_interval => INTERVAL '7 days',
			if_not_exists => TRUE
		)
	`)
	r.db.db.Exec(`
		SELECT add_retention_policy('insider_anomalies', INTERVAL '2 years', if_not_exists => TRUE)
	`)

	// Daily per-insider baseline aggregate backing profile queries.
	fmt.Println("📊 Creating insider_profiles_daily continuous aggregate...")
	if err := r.db.db.Exec(`
		CREATE MATERIALIZED VIEW IF NOT EXISTS insider_profiles_daily
		WITH (timescaledb.continuous) AS
		SELECT
			time_bucket('1 day', transaction_date) AS bucket,
			ticker,
			insider_name,
			COUNT(*) AS trade_count,
			AVG(CASE WHEN price_per_share IS NOT NULL THEN shares * price_per_share END) AS avg_transaction_size,
			AVG(shares) AS avg_shares,
			AVG(CASE
				WHEN transaction_code = 'S'
					AND shares_owned_after IS NOT NULL
					AND shares + shares_owned_after > 0
				THEN shares / (shares + shares_owned_after)
			END) AS pct_holdings_sold
		FROM insider_transactions
		GROUP BY bucket, ticker, insider_name
	`).Error; err != nil {
		fmt.Printf("⚠️ Warning: Failed to create insider_profiles_daily: %v\n", err)
	} else {
		fmt.Println("✅ insider_profiles_daily created successfully")
	}

	r.db.db.Exec(`
		SELECT add_continuous_aggregate_policy('insider_profiles_daily',
			start_offset => INTERVAL '3 days',
			end_offset => INTERVAL '1 hour',
			schedule_interval => INTERVAL '1 hour',
			if_not_exists => TRUE
		)
	`)

	return nil
}

// ============================================================================
// Transactions
// ============================================================================

// UpsertTransaction inserts a transaction and reports whether a new row was
// created. A conflict on the identity key is a silent no-op.
func (r *InsiderRepository) UpsertTransaction(tx *models.InsiderTransaction) (bool, error) {
	res := r.db.db.Clauses(clause.OnConflict{DoNothing: true}).Create(tx)
	if res.Error != nil {
		return false, fmt.Errorf("UpsertTransaction: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// UpsertTransactions bulk-inserts transactions, returning the count of
// primary-key-unique rows newly committed. Replaying the same batch is safe.
func (r *InsiderRepository) UpsertTransactions(txns []models.InsiderTransaction) (int, error) {
	inserted := 0
	for i := range txns {
		created, err := r.UpsertTransaction(&txns[i])
		if err != nil {
			return inserted, err
		}
		if created {
			inserted++
		}
	}
	return inserted, nil
}

// GetTransactions fetches recent transactions for a ticker, optionally
// filtered by insider, sorted by transaction date descending. The cutoff is
// inclusive: transaction_date >= today - daysBack.
func (r *InsiderRepository) GetTransactions(ticker string, daysBack int, insiderName string) ([]models.InsiderTransaction, error) {
	cutoff := r.today().AddDate(0, 0, -daysBack)

	var txns []models.InsiderTransaction
	query := r.db.db.
		Where("ticker = ? AND transaction_date >= ?", ticker, cutoff).
		Order("transaction_date DESC")
	if insiderName != "" {
		query = query.Where("insider_name = ?", insiderName)
	}
	if err := query.Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("GetTransactions: %w", err)
	}
	return txns, nil
}

// GetRecentSellers returns distinct insider names with any sale inside the window.
func (r *InsiderRepository) GetRecentSellers(ticker string, windowDays int) ([]string, error) {
	cutoff := r.today().AddDate(0, 0, -windowDays)

	var sellers []string
	err := r.db.db.Table("insider_transactions").
		Where("ticker = ? AND transaction_code = ? AND transaction_date >= ?", ticker, models.CodeSale, cutoff).
		Distinct("insider_name").
		Pluck("insider_name", &sellers).Error
	if err != nil {
		return nil, fmt.Errorf("GetRecentSellers: %w", err)
	}
	return sellers, nil
}

// ============================================================================
// Profiles
// ============================================================================

type profileRow struct {
	TotalTransactions     int64
	AvgTransactionSize    *float64
	TypicalSellPercentage *float64
}

// GetProfile builds the rolling baseline for one insider from the continuous
// aggregate, falling back to the base table when the aggregate is not
// available yet. Returns nil when no transactions exist.
func (r *InsiderRepository) GetProfile(ticker, insiderName string) (*models.InsiderProfile, error) {
	var row profileRow
	err := r.db.db.Raw(`
		SELECT
			COALESCE(SUM(trade_count), 0)  AS total_transactions,
			AVG(avg_transaction_size)      AS avg_transaction_size,
			AVG(pct_holdings_sold)         AS typical_sell_percentage
		FROM insider_profiles_daily
		WHERE ticker = ? AND insider_name = ?
	`, ticker, insiderName).Scan(&row).Error

	// FALLBACK: aggregate directly from insider_transactions when the view
	// is missing or not refreshed yet, so profiles stay available.
	if err != nil || row.TotalTransactions == 0 {
		if err := r.db.db.Raw(`
			SELECT
				COUNT(*) AS total_transactions,
				AVG(CASE WHEN price_per_share IS NOT NULL THEN shares * price_per_share END) AS avg_transaction_size,
				AVG(CASE
					WHEN transaction_code = 'S'
						AND shares_owned_after IS NOT NULL
						AND shares + shares_owned_after > 0
					THEN shares / (shares + shares_owned_after)
				END) AS typical_sell_percentage
			FROM insider_transactions
			WHERE ticker = ? AND insider_name = ?
		`, ticker, insiderName).Scan(&row).Error; err != nil {
			return nil, fmt.Errorf("GetProfile: %w", err)
		}
	}

	if row.TotalTransactions == 0 {
		return nil, nil
	}

	var span struct {
		FirstDate *time.Time
		LastDate  *time.Time
	}
	if err := r.db.db.Raw(`
		SELECT MIN(transaction_date) AS first_date, MAX(transaction_date) AS last_date
		FROM insider_transactions
		WHERE ticker = ? AND insider_name = ?
	`, ticker, insiderName).Scan(&span).Error; err != nil {
		return nil, fmt.Errorf("GetProfile span: %w", err)
	}

	total := int(row.TotalTransactions)
	avgFreq := 0.0
	if total > 1 && span.FirstDate != nil && span.LastDate != nil {
		spanDays := span.LastDate.Sub(*span.FirstDate).Hours() / 24
		avgFreq = spanDays / float64(total-1)
	}

	profile := &models.InsiderProfile{
		InsiderName:         insiderName,
		Ticker:              ticker,
		TotalTransactions:   total,
		AvgFrequencyDays:    avgFreq,
		LastTransactionDate: span.LastDate,
	}
	if row.AvgTransactionSize != nil {
		profile.AvgTransactionSize = *row.AvgTransactionSize
	}
	if row.TypicalSellPercentage != nil {
		profile.TypicalSellPercentage = *row.TypicalSellPercentage
	}
	return profile, nil
}

// ============================================================================
// Anomalies
// ============================================================================

// SaveAnomaly appends a detection record and returns its id.
func (r *InsiderRepository) SaveAnomaly(anomaly *models.InsiderAnomaly) (int64, error) {
	if anomaly.DetectedAt.IsZero() {
		anomaly.DetectedAt = r.Now().UTC()
	}
	if err := r.db.db.Create(anomaly).Error; err != nil {
		return 0, fmt.Errorf("SaveAnomaly: %w", err)
	}
	return anomaly.ID, nil
}

// GetAnomalies retrieves anomalies ordered by detection time descending.
// An empty ticker matches all tickers.
func (r *InsiderRepository) GetAnomalies(ticker string, minScore float64, limit int) ([]models.InsiderAnomaly, error) {
	var anomalies []models.InsiderAnomaly
	query := r.db.db.
		Where("severity_score >= ?", minScore).
		Order("detected_at DESC")
	if ticker != "" {
		query = query.Where("ticker = ?", ticker)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&anomalies).Error; err != nil {
		return nil, fmt.Errorf("GetAnomalies: %w", err)
	}
	return anomalies, nil
}

// ============================================================================
// Alerts
// ============================================================================

// SaveAlert appends a promoted signal and returns its id.
func (r *InsiderRepository) SaveAlert(alert *models.InsiderAlert) (int64, error) {
	if err := r.db.db.Create(alert).Error; err != nil {
		return 0, fmt.Errorf("SaveAlert: %w", err)
	}
	return alert.ID, nil
}

// GetAlerts retrieves alerts ordered by creation time descending. A nil
// delivered filter matches all alerts.
func (r *InsiderRepository) GetAlerts(delivered *bool, limit int) ([]models.InsiderAlert, error) {
	var alerts []models.InsiderAlert
	query := r.db.db.Order("created_at DESC")
	if delivered != nil {
		query = query.Where("delivered = ?", *delivered)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("GetAlerts: %w", err)
	}
	return alerts, nil
}

// MarkAlertDelivered flips the delivered flag after a successful webhook handoff.
func (r *InsiderRepository) MarkAlertDelivered(id int64) error {
	res := r.db.db.Model(&models.InsiderAlert{}).
		Where("id = ?", id).
		Update("delivered", true)
	if res.Error != nil {
		return fmt.Errorf("MarkAlertDelivered: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ============================================================================
// Watermarks
// ============================================================================

// GetWatermark returns the last fully-processed accession for a feed, or the
// empty string when the feed has never been polled.
func (r *InsiderRepository) GetWatermark(feedName string) (string, error) {
	var wm models.MonitorWatermark
	err := r.db.db.Where("feed_name = ?", feedName).First(&wm).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("GetWatermark: %w", err)
	}
	return wm.LastSeenAccession, nil
}

// SetWatermark unconditionally advances the feed watermark. The monitor is
// the only writer per feed.
func (r *InsiderRepository) SetWatermark(feedName, accession string) error {
	wm := models.MonitorWatermark{
		FeedName:          feedName,
		LastSeenAccession: accession,
		LastPollAt:        r.Now().UTC(),
	}
	err := r.db.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "feed_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_accession", "last_poll_at"}),
	}).Create(&wm).Error
	if err != nil {
		return fmt.Errorf("SetWatermark: %w", err)
	}
	return nil
}

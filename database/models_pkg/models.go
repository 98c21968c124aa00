package models

import "time"

// SEC Form 4 transaction codes. Unknown codes parsed from filings map to CodeOther.
const (
	CodePurchase    = "P"
	CodeSale        = "S"
	CodeAward       = "A"
	CodeDisposition = "D"
	CodeConversion  = "C"
	CodeExercise    = "M"
	CodeOther       = "O"
)

// Anomaly types emitted by the detection engine.
const (
	AnomalyVolume      = "VOLUME"
	AnomalyFrequency   = "FREQUENCY"
	AnomalyCluster     = "CLUSTER"
	AnomalyHoldingsPct = "HOLDINGS_PERCENTAGE"
	AnomalyTiming      = "TIMING"
)

// Insider sentiment labels derived from anomaly score and buy/sell mix.
const (
	SentimentBearish = "BEARISH"
	SentimentNeutral = "NEUTRAL"
	SentimentBullish = "BULLISH"
)

// ClusterInsiderName is the sentinel insider name used on cross-insider
// cluster anomalies, where no single reporting person is responsible.
const ClusterInsiderName = "MULTIPLE"

// InsiderTransaction is a single Form 4 transaction parsed from SEC EDGAR.
// Rows are immutable once persisted; the composite unique index on
// (ticker, insider_name, transaction_date, shares, transaction_code) gives
// upserts their at-most-once semantics.
//
// TimescaleDB Optimization:
//   - Stored in a hypertable partitioned by transaction_date
//   - Composite primary key (id, transaction_date) for hypertable compatibility
//   - Feeds the insider_profiles_daily continuous aggregate
type InsiderTransaction struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Ticker           string    `gorm:"size:10;index;not null;uniqueIndex:idx_insider_tx_identity,priority:1" json:"ticker"`
	InsiderName      string    `gorm:"type:text;not null;uniqueIndex:idx_insider_tx_identity,priority:2" json:"insider_name"`
	InsiderTitle     string    `gorm:"type:text" json:"insider_title"`
	IsOfficer        bool      `gorm:"default:false" json:"is_officer"`
	IsDirector       bool      `gorm:"default:false" json:"is_director"`
	TransactionDate  time.Time `gorm:"type:date;primaryKey;index;not null;uniqueIndex:idx_insider_tx_identity,priority:3" json:"transaction_date"`
	TransactionCode  string    `gorm:"size:1;not null;uniqueIndex:idx_insider_tx_identity,priority:5" json:"transaction_code"`
	Shares           float64   `gorm:"type:decimal(15,2);not null;uniqueIndex:idx_insider_tx_identity,priority:4" json:"shares"`
	PricePerShare    *float64  `gorm:"type:decimal(15,4)" json:"price_per_share,omitempty"`
	TotalValue       *float64  `gorm:"type:decimal(20,2)" json:"total_value,omitempty"`
	SharesOwnedAfter *float64  `gorm:"type:decimal(15,2)" json:"shares_owned_after,omitempty"`
	Is10b51          bool      `gorm:"column:is_10b5_1;default:false" json:"is_10b5_1"`
	FilingDate       time.Time `gorm:"type:date;not null" json:"filing_date"`
}

// TableName specifies the table name for InsiderTransaction
func (InsiderTransaction) TableName() string {
	return "insider_transactions"
}

// DollarSize returns shares x price when the price is known, 0 otherwise.
func (t *InsiderTransaction) DollarSize() float64 {
	if t.PricePerShare == nil {
		return 0
	}
	return t.Shares * *t.PricePerShare
}

// InsiderProfile is the rolling baseline for one (ticker, insider) pair,
// derived from stored history on each query. Never persisted as a row of its
// own; the insider_profiles_daily continuous aggregate backs it for speed.
type InsiderProfile struct {
	InsiderName           string     `json:"insider_name"`
	Ticker                string     `json:"ticker"`
	AvgTransactionSize    float64    `json:"avg_transaction_size"`
	AvgFrequencyDays      float64    `json:"avg_frequency_days"`
	TotalTransactions     int        `json:"total_transactions"`
	TypicalSellPercentage float64    `json:"typical_sell_percentage"`
	LastTransactionDate   *time.Time `json:"last_transaction_date,omitempty"`
}

// InsiderAnomaly is a single detected anomaly in insider trading behaviour.
// Appended by the detection engine, never updated.
type InsiderAnomaly struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DetectedAt    time.Time `gorm:"primaryKey;index;not null;autoCreateTime" json:"detected_at"`
	Ticker        string    `gorm:"size:10;index;not null" json:"ticker"`
	InsiderName   string    `gorm:"type:text;not null" json:"insider_name"`
	AnomalyType   string    `gorm:"type:text;not null" json:"anomaly_type"`
	SeverityScore float64   `gorm:"type:decimal(5,4);not null" json:"severity_score"`
	ZScore        float64   `gorm:"type:decimal(10,4)" json:"z_score"`
	Description   string    `gorm:"type:text" json:"description"`

	// Supporting evidence attached in memory only; the transactions
	// themselves already live in insider_transactions.
	Transactions []InsiderTransaction `gorm:"-" json:"transactions,omitempty"`
}

// TableName specifies the table name for InsiderAnomaly
func (InsiderAnomaly) TableName() string {
	return "insider_anomalies"
}

// InsiderSignal is the per-ticker aggregate produced by an analysis run.
// Ephemeral unless promoted to an InsiderAlert by the alert service.
type InsiderSignal struct {
	Ticker              string           `json:"ticker"`
	AnalysisDate        time.Time        `json:"analysis_date"`
	AnomalyScore        float64          `json:"anomaly_score"`
	Anomalies           []InsiderAnomaly `json:"anomalies"`
	InsiderSentiment    string           `json:"insider_sentiment"`
	Recommendation      string           `json:"recommendation"`
	CompositeAlphaScore *float64         `json:"composite_alpha_score,omitempty"`
}

// NewInsiderSignal returns a neutral zero-score signal for a ticker.
func NewInsiderSignal(ticker string, analysisDate time.Time) *InsiderSignal {
	return &InsiderSignal{
		Ticker:           ticker,
		AnalysisDate:     analysisDate,
		Anomalies:        []InsiderAnomaly{},
		InsiderSentiment: SentimentNeutral,
	}
}

// InsiderAlert is a persisted promoted signal. Append-only; the delivered
// flag flips once when the webhook dispatcher hands the alert off.
type InsiderAlert struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Ticker              string    `gorm:"size:10;index;not null" json:"ticker"`
	AnomalyScore        float64   `gorm:"type:decimal(5,4);not null" json:"anomaly_score"`
	InsiderSentiment    string    `gorm:"type:text;not null" json:"insider_sentiment"`
	Recommendation      string    `gorm:"type:text" json:"recommendation"`
	CompositeAlphaScore *float64  `gorm:"type:decimal(5,4)" json:"composite_alpha_score,omitempty"`
	CreatedAt           time.Time `gorm:"index;autoCreateTime" json:"created_at"`
	Delivered           bool      `gorm:"default:false;index" json:"delivered"`
}

// TableName specifies the table name for InsiderAlert
func (InsiderAlert) TableName() string {
	return "insider_alerts"
}

// MonitorWatermark records the newest feed entry a monitor path has fully
// processed. One row per named feed; writes only move it forward in feed order.
type MonitorWatermark struct {
	FeedName          string    `gorm:"primaryKey;size:50" json:"feed_name"`
	LastSeenAccession string    `gorm:"type:text;not null" json:"last_seen_accession"`
	LastPollAt        time.Time `gorm:"not null" json:"last_poll_at"`
}

// TableName specifies the table name for MonitorWatermark
func (MonitorWatermark) TableName() string {
	return "monitor_watermarks"
}

// Package app hosts the analysis pipeline: the filing monitor feeding the
// store, the two-tier anomaly engine, composite signal scoring and the alert
// service.
package app

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"form4-sentinel/config"
	models "form4-sentinel/database/models_pkg"
)

// Tier 1 thresholds
const (
	volumeZThreshold        = 2.0
	frequencyRatioThreshold = 0.25
	clusterSellerThreshold  = 3
	holdingsPctThreshold    = 0.20
)

// Role weights for signal scoring
const (
	roleWeightChief   = 1.5
	roleWeightOfficer = 1.2
)

const plannedTradeDiscount = 0.5

// rngSeed fixes the outlier model so repeated runs over the same history
// produce the same score.
const rngSeed = 42

// TransactionStore is the slice of the repository the analyzer needs.
type TransactionStore interface {
	GetTransactions(ticker string, daysBack int, insiderName string) ([]models.InsiderTransaction, error)
	GetRecentSellers(ticker string, windowDays int) ([]string, error)
	GetProfile(ticker, insiderName string) (*models.InsiderProfile, error)
	SaveAnomaly(anomaly *models.InsiderAnomaly) (int64, error)
}

// Analyzer is the two-tier anomaly detection engine for insider trading
// patterns. Tier 1 applies statistical rules per insider plus a cross-insider
// cluster check; Tier 2 enriches with an isolation forest score.
type Analyzer struct {
	store TransactionStore
	cfg   config.DetectionConfig

	// Now is injectable for deterministic date math in tests.
	Now func() time.Time
}

// NewAnalyzer creates an analyzer over the given store.
func NewAnalyzer(store TransactionStore, cfg config.DetectionConfig) *Analyzer {
	return &Analyzer{store: store, cfg: cfg, Now: time.Now}
}

func (a *Analyzer) today() time.Time {
	t := a.Now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AnalyzeTicker runs full anomaly analysis for a single ticker. A ticker with
// no stored history yields a neutral zero signal, not an error. Detected
// anomalies are persisted before the signal is returned.
func (a *Analyzer) AnalyzeTicker(ticker string) (*models.InsiderSignal, error) {
	txns, err := a.store.GetTransactions(ticker, a.cfg.LookbackDays, "")
	if err != nil {
		return nil, fmt.Errorf("AnalyzeTicker %s: %w", ticker, err)
	}
	if len(txns) == 0 {
		return models.NewInsiderSignal(ticker, a.today()), nil
	}

	insiders := make(map[string]bool)
	for _, tx := range txns {
		insiders[tx.InsiderName] = true
	}
	names := make([]string, 0, len(insiders))
	for name := range insiders {
		names = append(names, name)
	}
	sort.Strings(names)

	var allAnomalies []models.InsiderAnomaly
	for _, name := range names {
		profile, err := a.store.GetProfile(ticker, name)
		if err != nil {
			return nil, fmt.Errorf("AnalyzeTicker %s: %w", ticker, err)
		}
		if profile == nil {
			continue
		}
		var personTxns []models.InsiderTransaction
		for _, tx := range txns {
			if tx.InsiderName == name {
				personTxns = append(personTxns, tx)
			}
		}
		allAnomalies = append(allAnomalies, a.tier1Detect(personTxns, profile, ticker)...)
	}

	clusterAnomaly, err := a.detectClusterSelling(ticker)
	if err != nil {
		return nil, fmt.Errorf("AnalyzeTicker %s: %w", ticker, err)
	}
	if clusterAnomaly != nil {
		allAnomalies = append(allAnomalies, *clusterAnomaly)
	}

	mlScore := a.tier2Score(txns)

	anomalyScore := a.computeAnomalyScore(allAnomalies, mlScore, txns)
	sentiment := deriveSentiment(anomalyScore, txns)

	for i := range allAnomalies {
		if _, err := a.store.SaveAnomaly(&allAnomalies[i]); err != nil {
			return nil, fmt.Errorf("AnalyzeTicker %s: %w", ticker, err)
		}
	}

	signal := models.NewInsiderSignal(ticker, a.today())
	signal.AnomalyScore = anomalyScore
	signal.Anomalies = allAnomalies
	signal.InsiderSentiment = sentiment
	return signal, nil
}

// ============================================================================
// Tier 1: Statistical anomaly detection
// ============================================================================

// tier1Detect applies the per-insider rules to one insider's transactions,
// sorted newest first.
func (a *Analyzer) tier1Detect(txns []models.InsiderTransaction, profile *models.InsiderProfile, ticker string) []models.InsiderAnomaly {
	var anomalies []models.InsiderAnomaly
	if len(txns) == 0 {
		return anomalies
	}

	latest := txns[0]
	name := latest.InsiderName

	// Volume anomaly: latest dollar size against the insider's own baseline.
	var sizes []float64
	for _, tx := range txns {
		if tx.PricePerShare != nil {
			sizes = append(sizes, tx.DollarSize())
		}
	}
	if len(sizes) >= 3 {
		latestSize := latest.DollarSize()
		mean := stat.Mean(sizes, nil)
		std := stat.StdDev(sizes, nil)
		if std > 0 {
			z := (latestSize - mean) / std
			if math.Abs(z) > volumeZThreshold {
				anomalies = append(anomalies, models.InsiderAnomaly{
					Ticker:        ticker,
					InsiderName:   name,
					AnomalyType:   models.AnomalyVolume,
					SeverityScore: math.Min(1.0, math.Abs(z)/5.0),
					ZScore:        z,
					Description:   fmt.Sprintf("Transaction size z-score=%.2f vs historical mean", z),
					Transactions:  []models.InsiderTransaction{latest},
				})
			}
		}
	}

	// Frequency anomaly: trading again much sooner than the usual cadence.
	if profile.AvgFrequencyDays > 0 && len(txns) >= 2 {
		daysSince := int(a.today().Sub(dateOnly(latest.TransactionDate)).Hours() / 24)
		if daysSince > 0 {
			ratio := float64(daysSince) / profile.AvgFrequencyDays
			if ratio < frequencyRatioThreshold {
				anomalies = append(anomalies, models.InsiderAnomaly{
					Ticker:        ticker,
					InsiderName:   name,
					AnomalyType:   models.AnomalyFrequency,
					SeverityScore: math.Min(1.0, 1.0-ratio),
					Description:   fmt.Sprintf("Traded %dd after previous vs avg %.0fd", daysSince, profile.AvgFrequencyDays),
					Transactions:  []models.InsiderTransaction{txns[0], txns[1]},
				})
			}
		}
	}

	// Holdings percentage anomaly: single sale liquidating a large stake share.
	if latest.TransactionCode == models.CodeSale && latest.SharesOwnedAfter != nil {
		totalBefore := latest.Shares + *latest.SharesOwnedAfter
		if totalBefore > 0 {
			pctSold := latest.Shares / totalBefore
			if pctSold > holdingsPctThreshold {
				anomalies = append(anomalies, models.InsiderAnomaly{
					Ticker:        ticker,
					InsiderName:   name,
					AnomalyType:   models.AnomalyHoldingsPct,
					SeverityScore: math.Min(1.0, pctSold),
					Description:   fmt.Sprintf("Sold %.1f%% of holdings in single transaction", pctSold*100),
					Transactions:  []models.InsiderTransaction{latest},
				})
			}
		}
	}

	return anomalies
}

// detectClusterSelling flags coordinated selling by several insiders inside
// the cluster window. Attributed to the MULTIPLE sentinel name since no
// single reporting person is responsible.
func (a *Analyzer) detectClusterSelling(ticker string) (*models.InsiderAnomaly, error) {
	sellers, err := a.store.GetRecentSellers(ticker, a.cfg.ClusterWindowDays)
	if err != nil {
		return nil, err
	}
	if len(sellers) < clusterSellerThreshold {
		return nil, nil
	}
	return &models.InsiderAnomaly{
		Ticker:        ticker,
		InsiderName:   models.ClusterInsiderName,
		AnomalyType:   models.AnomalyCluster,
		SeverityScore: math.Min(1.0, float64(len(sellers))/6.0),
		Description:   fmt.Sprintf("%d insiders sold within %dd window", len(sellers), a.cfg.ClusterWindowDays),
	}, nil
}

// ============================================================================
// Tier 2: Isolation forest
// ============================================================================

// tier2Score fits the outlier model on the ticker's feature history and
// scores the most recent transaction. Requires at least 10 transactions;
// insufficient history contributes nothing rather than failing.
func (a *Analyzer) tier2Score(txns []models.InsiderTransaction) float64 {
	if len(txns) < 10 {
		return 0.0
	}

	features := buildFeatureMatrix(txns)
	if len(features) < 5 {
		return 0.0
	}

	forest := newIsolationForest(features, rngSeed)
	raw := forest.decisionFunction(features[len(features)-1])
	// decisionFunction is negative for anomalies; map to 0..1
	return clip01(1.0 - (raw + 0.5))
}

// buildFeatureMatrix produces per-transaction rows of
// [dollar_size, days_since_prev, pct_sold, is_officer] in chronological order.
func buildFeatureMatrix(txns []models.InsiderTransaction) [][]float64 {
	sorted := make([]models.InsiderTransaction, len(txns))
	copy(sorted, txns)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TransactionDate.Before(sorted[j].TransactionDate)
	})

	rows := make([][]float64, 0, len(sorted))
	for i, tx := range sorted {
		daysSince := 0.0
		if i > 0 {
			daysSince = tx.TransactionDate.Sub(sorted[i-1].TransactionDate).Hours() / 24
		}
		pctSold := 0.0
		if tx.SharesOwnedAfter != nil && tx.TransactionCode == models.CodeSale {
			total := tx.Shares + *tx.SharesOwnedAfter
			if total > 0 {
				pctSold = tx.Shares / total
			}
		}
		isOfficer := 0.0
		if tx.IsOfficer {
			isOfficer = 1.0
		}
		rows = append(rows, []float64{tx.DollarSize(), daysSince, pctSold, isOfficer})
	}
	return rows
}

// ============================================================================
// Composite scoring
// ============================================================================

// computeAnomalyScore blends tier-1 severity and the ML score, boosts
// co-occurring anomaly types, weights by insider role and discounts 10b5-1
// planned trades. txns are sorted newest first.
func (a *Analyzer) computeAnomalyScore(anomalies []models.InsiderAnomaly, mlScore float64, txns []models.InsiderTransaction) float64 {
	if len(anomalies) == 0 && mlScore == 0.0 {
		return 0.0
	}

	tier1Max := 0.0
	types := make(map[string]bool)
	for _, an := range anomalies {
		if an.SeverityScore > tier1Max {
			tier1Max = an.SeverityScore
		}
		types[an.AnomalyType] = true
	}
	coOccurrenceBoost := 0.0
	if len(types) > 1 {
		coOccurrenceBoost = math.Min(0.2, float64(len(types))*0.05)
	}

	base := 0.6*tier1Max + 0.4*mlScore + coOccurrenceBoost

	// Role weighting over the most recent transactions.
	roleWeight := 1.0
	for _, tx := range headTxns(txns, 5) {
		title := strings.ToLower(tx.InsiderTitle)
		switch {
		case strings.Contains(title, "ceo") || strings.Contains(title, "chief executive"):
			roleWeight = math.Max(roleWeight, roleWeightChief)
		case strings.Contains(title, "cfo") || strings.Contains(title, "chief financial"):
			roleWeight = math.Max(roleWeight, roleWeightChief)
		case tx.IsOfficer:
			roleWeight = math.Max(roleWeight, roleWeightOfficer)
		}
	}

	// 10b5-1 plans are pre-scheduled, so planned trades carry less signal.
	recent := headTxns(txns, 10)
	planned := 0
	for _, tx := range recent {
		if tx.Is10b51 {
			planned++
		}
	}
	plannedRatio := float64(planned) / math.Max(float64(len(recent)), 1)
	plannedDiscount := 1.0 - plannedRatio*(1.0-plannedTradeDiscount)

	return clip01(base * roleWeight * plannedDiscount)
}

// deriveSentiment labels the ticker from the anomaly score and buy/sell mix.
func deriveSentiment(anomalyScore float64, txns []models.InsiderTransaction) string {
	sells, buys := 0, 0
	for _, tx := range txns {
		switch tx.TransactionCode {
		case models.CodeSale:
			sells++
		case models.CodePurchase:
			buys++
		}
	}
	if anomalyScore > 0.6 && sells > buys {
		return models.SentimentBearish
	}
	if buys > sells {
		return models.SentimentBullish
	}
	return models.SentimentNeutral
}

func headTxns(txns []models.InsiderTransaction, n int) []models.InsiderTransaction {
	if len(txns) < n {
		return txns
	}
	return txns[:n]
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

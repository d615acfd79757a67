package batch

// Topics published by the batch module.
const (
	// TopicPortfolioFlagged carries a *risk.PortfolioFlag when a nightly
	// scan finds high-confidence anomalies for a property.
	TopicPortfolioFlagged = "anomaly.portfolio.flagged"

	// TopicHealthCritical carries a *risk.HealthFinding when the health
	// probe observes a critical condition.
	TopicHealthCritical = "batch.health.critical"
)

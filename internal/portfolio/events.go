package portfolio

// Event topics published by the portfolio module.
const (
	// TopicSampleRecorded carries a *risk.MetricSample after ingest.
	TopicSampleRecorded = "portfolio.sample.recorded"

	// TopicPropertyRegistered carries a *risk.Property after registration.
	TopicPropertyRegistered = "portfolio.property.registered"
)

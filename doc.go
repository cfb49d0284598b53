// Package homepulse analyzes per-entity numeric time series from a
// home-automation platform: it detects rate-of-change anomalies, computes
// short- and long-term trends with statistical confidence, compares recent
// behavior against a historical baseline, and turns the findings into
// prioritized, human-readable optimization recommendations.
//
// # Basic Usage
//
// Build an engine against the host's history API and entity registry:
//
//	cfg := homepulse.DefaultConfig()
//	cfg.History.BaseURL = "http://homehub.local:8123"
//	cfg.History.Token = token
//
//	engine, err := homepulse.NewEngine(cfg, homepulse.Dependencies{
//	    Registry: registry,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
// Run one batch analysis and read the ranked recommendations:
//
//	result, err := engine.RunAnalysis(ctx)
//	for _, rec := range result.Recommendations {
//	    fmt.Println(rec.Priority, rec.Title)
//	}
//
// Or query a single entity's trend:
//
//	trend, err := engine.Trends().GetTrendData(ctx, "sensor.living_room_temperature")
//
// Start launches a cancellable periodic scheduler that re-runs the batch at
// the configured interval and persists each result to the configuration
// store.
package homepulse

package collect

import (
	"time"

	"github.com/austat/austat/internal/config"
	"github.com/austat/austat/internal/log"
)

// Sources builds the standard collector set from configuration.
func Sources(cfg config.CollectConfig, logger log.Logger) []Collector {
	delay := time.Duration(cfg.DelayMS) * time.Millisecond
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	return []Collector{
		NewRBADocs(RBADocsConfig{
			BaseURL:   cfg.RBABaseURL,
			UserAgent: cfg.UserAgent,
			Delay:     delay,
			Timeout:   timeout,
			Logger:    logger,
		}),
		NewRBARates(RBATablesConfig{
			BaseURL:   cfg.RBABaseURL,
			UserAgent: cfg.UserAgent,
			Timeout:   timeout,
			Logger:    logger,
		}),
		NewRBAEconomy(RBATablesConfig{
			BaseURL:   cfg.RBABaseURL,
			UserAgent: cfg.UserAgent,
			Timeout:   timeout,
			Logger:    logger,
		}),
		NewABS(ABSConfig{
			BaseURL:   cfg.ABSBaseURL,
			UserAgent: cfg.UserAgent,
			Timeout:   timeout,
			Logger:    logger,
		}),
	}
}

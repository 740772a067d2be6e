// Package filterchain implements the nine-stage early-filtering pipeline:
// an ordered sequence of cheap-to-expensive checks over an evaluation
// point, stopping at the first rejection.
package filterchain

import (
	"context"
	"time"

	"ares_api/internal/dataprovider"
	"ares_api/internal/models"
)

// Weight classifies a filter's relative cost into three tiers.
type Weight string

const (
	WeightLight  Weight = "light"
	WeightMedium Weight = "medium"
	WeightHeavy  Weight = "heavy"
)

// Result is a single filter's verdict for one evaluation point.
type Result struct {
	Passed    bool
	Reason    string
	Metrics   map[string]interface{}
	Timestamp time.Time
}

// Filter is one stage of the chain. One chain, and so one instance of each
// filter, can be shared by concurrent callers (the Orchestrator reuses its
// chain across every worker), so Execute may run on several goroutines at
// once and implementations keep no per-call state on the receiver.
type Filter interface {
	Name() string
	Weight() Weight
	MaxExecutionTime() time.Duration
	Execute(ctx context.Context, data *dataprovider.Provider, strategy models.StrategyConfiguration, evalTime time.Time) Result
}

// Package ratelimit provides a gateway plugin that enforces a per-tenant
// request budget using the same rolling-window counter the Quota Tracker
// uses for provider-side limits. Configure it at the before_request stage
// so over-budget requests are rejected before a candidate is even ranked.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/ferro-labs/inference-gateway/internal/kvstore"
	"github.com/ferro-labs/inference-gateway/internal/quota"
	"github.com/ferro-labs/inference-gateway/plugin"
)

func init() {
	plugin.RegisterFactory("rate-limit", func() plugin.Plugin {
		return &Plugin{}
	})
}

// Plugin enforces a per-tenant requests-per-minute budget.
type Plugin struct {
	tracker *quota.Tracker
	rpm     int
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string { return "rate-limit" }

// Type returns the plugin lifecycle hook type.
func (p *Plugin) Type() plugin.PluginType { return plugin.TypeRateLimit }

// Init reads config keys:
//   - requests_per_minute (float64 or int, default 600)
func (p *Plugin) Init(config map[string]interface{}) error {
	rpm := 600

	if v, ok := config["requests_per_minute"]; ok {
		switch val := v.(type) {
		case float64:
			rpm = int(val)
		case int:
			rpm = val
		default:
			return fmt.Errorf("rate-limit: requests_per_minute must be a number")
		}
	}

	p.rpm = rpm
	p.tracker = quota.NewTracker(kvstore.NewMemoryStore(time.Minute))
	return nil
}

// Execute rejects the request if the tenant's per-minute budget is spent.
func (p *Plugin) Execute(ctx context.Context, pctx *plugin.Context) error {
	tenant := "default"
	if pctx.Metadata != nil {
		if t, ok := pctx.Metadata["tenant_id"].(string); ok && t != "" {
			tenant = t
		}
	}

	res, err := p.tracker.CheckAndReserve(ctx, tenant, quota.Limits{RPM: p.rpm, TPM: 0}, 0)
	if err != nil {
		// Fail open: a quota-store outage must not block every request.
		return nil
	}
	if !res.Allowed {
		pctx.Reject = true
		pctx.Reason = "rate limit exceeded"
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

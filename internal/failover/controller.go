// Package failover retries a streamed chat request across the sites of a
// registry, reporting every outcome back to the health tracker.
package failover

import (
	"context"
	"errors"

	"github.com/liliang-cn/roundtable/internal/domain"
	"github.com/liliang-cn/roundtable/internal/llm"
	"go.uber.org/zap"
)

// DefaultMaxRetries is used when Options.MaxRetries is not positive
const DefaultMaxRetries = 3

const fallbackReason = "previous site failed"

// SiteSelector picks sites and records their outcomes
type SiteSelector interface {
	SelectSite() (domain.Site, bool)
	ReportFailure(siteID string)
	ReportSuccess(siteID string)
}

// Streamer performs one streamed request against one site
type Streamer interface {
	Stream(ctx context.Context, site domain.Site, messages []domain.ChatMessage, onChunk llm.ChunkFunc) (string, error)
}

// SiteChangeFunc is called before every attempt after the first with the
// newly selected site and the reason the previous attempt failed
type SiteChangeFunc func(site domain.Site, reason string)

// Options tunes a single Send call
type Options struct {
	MaxRetries   int
	OnSiteChange SiteChangeFunc
}

// FailedAttempt records one site that failed during a Send
type FailedAttempt struct {
	Site  domain.Site
	Error error
}

// Result is the outcome of a successful Send
type Result struct {
	Text           string
	Site           domain.Site
	FailedAttempts []FailedAttempt
}

// Controller sends chat requests with retry and failover
type Controller struct {
	selector  SiteSelector
	transport Streamer
	logger    *zap.Logger
}

// NewController creates a failover controller
func NewController(selector SiteSelector, transport Streamer, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{selector: selector, transport: transport, logger: logger}
}

// Send streams messages to the next eligible site, moving to another site
// after every non-cancellation failure until the retry budget is spent.
func (c *Controller) Send(ctx context.Context, messages []domain.ChatMessage, onChunk llm.ChunkFunc, opts Options) (*Result, error) {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var (
		failed  []FailedAttempt
		lastErr error
	)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, llm.NewAbortedError(ctx.Err())
		}

		site, ok := c.selector.SelectSite()
		if !ok {
			c.logger.Warn("no available sites", zap.Int("attempt", attempt))
			return nil, llm.NewNoAvailableSitesError()
		}

		if attempt > 1 {
			reason := fallbackReason
			if lastErr != nil {
				reason = lastErr.Error()
			}
			c.logger.Info("failing over to next site",
				zap.String("site_id", site.ID),
				zap.String("site", site.Name),
				zap.Int("attempt", attempt),
				zap.String("reason", reason),
			)
			if opts.OnSiteChange != nil {
				opts.OnSiteChange(site, reason)
			}
		}

		c.logger.Debug("sending request",
			zap.String("site_id", site.ID),
			zap.String("site", site.Name),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
		)

		text, err := c.transport.Stream(ctx, site, messages, onChunk)
		if err == nil {
			c.selector.ReportSuccess(site.ID)
			return &Result{Text: text, Site: site, FailedAttempts: failed}, nil
		}

		if llm.IsAborted(err) || ctx.Err() != nil {
			c.logger.Debug("request aborted", zap.String("site_id", site.ID))
			return nil, abortedError(ctx, err)
		}

		c.logger.Warn("site request failed",
			zap.String("site_id", site.ID),
			zap.String("site", site.Name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		c.selector.ReportFailure(site.ID)
		failed = append(failed, FailedAttempt{Site: site, Error: err})
		lastErr = err
	}

	c.logger.Error("all sites failed", zap.Int("attempts", maxRetries), zap.Error(lastErr))
	return nil, llm.NewAllSitesFailedError(maxRetries, lastErr)
}

// abortedError keeps an aborted transport error as is and converts any other
// error observed after cancellation into one
func abortedError(ctx context.Context, err error) error {
	var e *llm.Error
	if errors.As(err, &e) && e.Kind == llm.KindAborted {
		return err
	}
	return llm.NewAbortedError(ctx.Err())
}

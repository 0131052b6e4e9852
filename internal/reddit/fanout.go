package reddit

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/onlyscans/scanproxy/internal/config"
	"github.com/onlyscans/scanproxy/internal/token"
)

// FanOut fetches every subreddit in subs and merges their children.
// Individual failures are logged and skipped, so the only error returned is
// a failure to obtain a token before any request is made.
func (c *Client) FanOut(ctx context.Context, subs []string) (Listing, error) {
	cred, err := c.tokens.Token(ctx)
	if err != nil {
		return Listing{}, err
	}

	policy := c.Policy()
	results := make([][]json.RawMessage, len(subs))

	fetchOne := func(i int) {
		children, err := c.fetchChildren(ctx, subs[i], cred, policy)
		if err != nil {
			c.metrics.RecordFanOutItem("failed")
			c.logger.WarnWithContext(ctx, "subreddit fetch failed", "subreddit", subs[i], "error", err)
			return
		}
		c.metrics.RecordFanOutItem("success")
		results[i] = children
	}

	if policy.Strategy == config.StrategySequential {
		for i := range subs {
			if i > 0 {
				if err := c.sleep(ctx, policy.PacingDelay); err != nil {
					c.logger.WarnWithContext(ctx, "fan-out interrupted", "error", err, "completed", i)
					break
				}
			}
			fetchOne(i)
		}
	} else {
		var g errgroup.Group
		if policy.MaxConcurrency > 0 {
			g.SetLimit(policy.MaxConcurrency)
		}
		for i := range subs {
			g.Go(func() error {
				fetchOne(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	out := EmptyListing()
	for _, children := range results {
		out.Data.Children = append(out.Data.Children, children...)
	}
	return out, nil
}

func (c *Client) fetchChildren(ctx context.Context, sub string, cred token.Credential, policy Policy) ([]json.RawMessage, error) {
	if !config.ValidSubreddit(sub) {
		return nil, fmt.Errorf("invalid subreddit name %q", sub)
	}
	body, err := c.fetch(ctx, "listing", c.listingURL(sub), cred, policy)
	if err != nil {
		return nil, err
	}
	var listing Listing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode /r/%s: %w", sub, err)
	}
	return listing.Data.Children, nil
}

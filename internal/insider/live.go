package insider

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/onlyscans/scanproxy/internal/logging"
	"github.com/onlyscans/scanproxy/internal/metrics"
	"github.com/onlyscans/scanproxy/internal/store"
)

// SnapshotKey is the store key under which live results are kept.
const SnapshotKey = "insider-trades"

// EDGAR titles look like "4 - Doe John (0001234567) (Reporting)".
var titleRe = regexp.MustCompile(`^\s*([^\s]+)\s+-\s+(.+?)\s+\((\d+)\)\s*(?:\((\w+)\))?\s*$`)

// SnapshotStore persists the last good feed result.
type SnapshotStore interface {
	Save(ctx context.Context, key string, payload []byte) error
	Latest(ctx context.Context, key string) (store.Snapshot, error)
}

// LiveOptions configures a LiveProvider.
type LiveOptions struct {
	FeedURL    string
	FormType   string
	UserAgent  string // EDGAR rejects generic agents
	Timeout    time.Duration
	HTTPClient *http.Client
	Snapshots  SnapshotStore
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
}

// LiveProvider reads Form 4 filings from the EDGAR Atom feed.
type LiveProvider struct {
	feedURL   string
	formType  string
	timeout   time.Duration
	parser    *gofeed.Parser
	snapshots SnapshotStore
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewLiveProvider creates a live EDGAR provider. Snapshots may be nil.
func NewLiveProvider(opts LiveOptions) *LiveProvider {
	if opts.FormType == "" {
		opts.FormType = "4"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	fp := gofeed.NewParser()
	if opts.HTTPClient != nil {
		fp.Client = opts.HTTPClient
	}
	if opts.UserAgent != "" {
		fp.UserAgent = opts.UserAgent
	}

	return &LiveProvider{
		feedURL:   opts.FeedURL,
		formType:  opts.FormType,
		timeout:   opts.Timeout,
		parser:    fp,
		snapshots: opts.Snapshots,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Mode implements Provider.
func (p *LiveProvider) Mode() string { return "live" }

// Trades fetches the feed. When the fetch fails the most recent snapshot is
// served instead, if there is one.
func (p *LiveProvider) Trades(ctx context.Context) ([]Trade, error) {
	trades, err := p.fetch(ctx)
	if err == nil {
		p.metrics.RecordInsiderFeed("live", "success")
		p.saveSnapshot(ctx, trades)
		return trades, nil
	}

	p.metrics.RecordInsiderFeed("live", "error")
	p.logger.ErrorWithContext(ctx, "insider feed fetch failed", "url", p.feedURL, "error", err)

	stale, snapErr := p.loadSnapshot(ctx)
	if snapErr != nil {
		return nil, fmt.Errorf("fetch insider feed: %w", err)
	}
	p.metrics.RecordInsiderFeed("snapshot", "success")
	return stale, nil
}

func (p *LiveProvider) fetch(ctx context.Context) ([]Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	feed, err := p.parser.ParseURLWithContext(p.feedURL, ctx)
	if err != nil {
		return nil, err
	}
	return TradesFromFeed(feed, p.formType), nil
}

func (p *LiveProvider) saveSnapshot(ctx context.Context, trades []Trade) {
	if p.snapshots == nil {
		return
	}
	payload, err := json.Marshal(trades)
	if err != nil {
		p.logger.Warn("encode insider snapshot", "error", err)
		return
	}
	if err := p.snapshots.Save(ctx, SnapshotKey, payload); err != nil {
		p.logger.WarnWithContext(ctx, "save insider snapshot failed", "error", err)
	}
}

func (p *LiveProvider) loadSnapshot(ctx context.Context) ([]Trade, error) {
	if p.snapshots == nil {
		return nil, store.ErrNoSnapshot
	}
	snap, err := p.snapshots.Latest(ctx, SnapshotKey)
	if err != nil {
		if !stderrors.Is(err, store.ErrNoSnapshot) {
			p.logger.WarnWithContext(ctx, "load insider snapshot failed", "error", err)
		}
		return nil, err
	}

	var trades []Trade
	if err := json.Unmarshal(snap.Payload, &trades); err != nil {
		return nil, err
	}
	p.logger.WarnWithContext(ctx, "serving stale insider snapshot",
		"snapshot_at", snap.CreatedAt.Format(time.RFC3339),
		"trades", len(trades),
	)
	return trades, nil
}

// TradesFromFeed keeps entries whose category matches formType and projects
// the insider name, filing date and link. Issuer-side duplicates are dropped.
// The result is never nil.
func TradesFromFeed(feed *gofeed.Feed, formType string) []Trade {
	trades := []Trade{}
	if feed == nil {
		return trades
	}
	for _, item := range feed.Items {
		form, name, role := parseTitle(item.Title)
		if !hasCategory(item, formType) && form != formType {
			continue
		}
		if strings.EqualFold(role, "Issuer") {
			continue
		}
		trades = append(trades, Trade{
			InsiderName: name,
			FilingDate:  filingDate(item),
			Link:        item.Link,
		})
	}
	return trades
}

func hasCategory(item *gofeed.Item, term string) bool {
	for _, c := range item.Categories {
		if strings.TrimSpace(c) == term {
			return true
		}
	}
	return false
}

// parseTitle splits an EDGAR entry title into form type, filer name and role.
// Titles that do not match are returned whole as the name.
//
// gofeed reports an Atom category by its label when one is set, and EDGAR
// always labels it "form type", so the title prefix is the reliable source
// of the form.
func parseTitle(title string) (form, name, role string) {
	m := titleRe.FindStringSubmatch(title)
	if m == nil {
		return "", strings.TrimSpace(title), ""
	}
	return m[1], m[2], m[4]
}

// filingDate keeps the calendar date in the entry's own offset. gofeed
// normalises the parsed times to UTC, which moves evening filings to the
// next day.
func filingDate(item *gofeed.Item) string {
	if d := datePrefix(item.Updated); d != "" {
		return d
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.Format("2006-01-02")
	}
	if d := datePrefix(item.Published); d != "" {
		return d
	}
	if item.PublishedParsed != nil {
		return item.PublishedParsed.Format("2006-01-02")
	}
	return ""
}

func datePrefix(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) < 10 {
		return ""
	}
	if _, err := time.Parse("2006-01-02", raw[:10]); err != nil {
		return ""
	}
	return raw[:10]
}

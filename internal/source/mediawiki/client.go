// Package mediawiki reads revision histories from the MediaWiki Action API.
package mediawiki

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/evoapps/evotrees/internal/core/model"
	"github.com/evoapps/evotrees/internal/metrics"
	"github.com/evoapps/evotrees/internal/source"
)

// MaxBatchSize is the largest rvlimit the API accepts when content is
// requested.
const MaxBatchSize = 50

type Config struct {
	APIURL            string
	UserAgent         string
	BatchSize         int
	RequestsPerSecond float64
	Burst             int
	MaxRetries        uint64
	Timeout           time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  logrus.FieldLogger
	Metrics *metrics.Metrics

	retryInterval time.Duration
}

func New(cfg Config, logger logrus.FieldLogger) *Client {
	if cfg.BatchSize < 1 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		cfg:           cfg,
		http:          &http.Client{Timeout: cfg.Timeout},
		limiter:       rate.NewLimiter(limit, cfg.Burst),
		logger:        logger.WithField("action", "fetch_revisions"),
		retryInterval: 500 * time.Millisecond,
	}
}

// History streams the revisions of title oldest first, one API page at a
// time.
func (c *Client) History(ctx context.Context, title string) iter.Seq2[model.RawRevision, error] {
	return func(yield func(model.RawRevision, error) bool) {
		cont := ""
		for {
			revs, next, err := c.fetch(ctx, title, cont)
			if err != nil {
				yield(model.RawRevision{}, err)
				return
			}
			for _, r := range revs {
				if !yield(r, nil) {
					return
				}
			}
			if next == "" {
				return
			}
			cont = next
		}
	}
}

func (c *Client) query(title, cont string) url.Values {
	params := url.Values{
		"action":        {"query"},
		"prop":          {"revisions"},
		"titles":        {title},
		"rvprop":        {"ids|timestamp|content"},
		"rvslots":       {"main"},
		"rvdir":         {"newer"},
		"rvlimit":       {strconv.Itoa(c.cfg.BatchSize)},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	if cont != "" {
		params.Set("rvcontinue", cont)
		params.Set("continue", "||")
	}
	return params
}

func (c *Client) fetch(ctx context.Context, title, cont string) ([]model.RawRevision, string, error) {
	endpoint := c.cfg.APIURL + "?" + c.query(title, cont).Encode()
	log := c.logger.WithField("title", title)

	var body []byte
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()
		c.Metrics.SourceRequest(fmt.Sprintf("%dxx", resp.StatusCode/100))

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("mediawiki returned %s", resp.Status)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("mediawiki returned %s", resp.Status))
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, c.cfg.MaxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait).Warn("revision request failed, retrying")
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, "", fmt.Errorf("failed to fetch revisions of %q: %w", title, err)
	}

	revs, next, err := parseRevisions(body)
	if err != nil {
		return nil, "", fmt.Errorf("revisions of %q: %w", title, err)
	}
	log.WithField("count", len(revs)).Debug("fetched revision page")
	return revs, next, nil
}

// parseRevisions decodes one formatversion=2 query response and returns the
// continuation token, empty on the last page.
func parseRevisions(body []byte) ([]model.RawRevision, string, error) {
	if !gjson.ValidBytes(body) {
		return nil, "", fmt.Errorf("invalid JSON response")
	}
	res := gjson.ParseBytes(body)

	if apiErr := res.Get("error"); apiErr.Exists() {
		return nil, "", fmt.Errorf("api error %s: %s", apiErr.Get("code").String(), apiErr.Get("info").String())
	}

	page := res.Get("query.pages.0")
	if !page.Exists() || page.Get("missing").Bool() || page.Get("invalid").Bool() {
		return nil, "", source.ErrPageNotFound
	}

	var revs []model.RawRevision
	for _, r := range page.Get("revisions").Array() {
		rev := model.RawRevision{ID: r.Get("revid").Int()}
		if ts := r.Get("timestamp").String(); ts != "" {
			t, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return nil, "", fmt.Errorf("revision %d: bad timestamp %q: %w", rev.ID, ts, err)
			}
			rev.Timestamp = t
		}
		if text := r.Get("slots.main.content"); text.Exists() {
			s := text.String()
			rev.Text = &s
		}
		revs = append(revs, rev)
	}

	return revs, res.Get("continue.rvcontinue").String(), nil
}

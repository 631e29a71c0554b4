package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/climate-studio/atlas/internal/resilience"
)

// envelope is the wire format of the upstream dataset API.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// RemoteOptions configures the remote dataset client.
type RemoteOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Rate      rate.Limit
	Burst     int
	Retry     resilience.RetryConfig
	Breaker   resilience.CircuitConfig
}

// Remote fetches viewport-scoped datasets over HTTP. Concurrent requests
// for the same dataset and viewport collapse into a single upstream call.
type Remote struct {
	client  *http.Client
	opts    RemoteOptions
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	flight  singleflight.Group
	log     *zap.Logger
}

// NewRemote creates a remote client with the given options.
func NewRemote(opts RemoteOptions) *Remote {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "atlas/1.0"
	}
	if opts.Rate == 0 {
		opts.Rate = 5
	}
	if opts.Burst == 0 {
		opts.Burst = 5
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Remote{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:    opts,
		limiter: rate.NewLimiter(opts.Rate, opts.Burst),
		breaker: resilience.NewCircuitBreaker(opts.Breaker, resilience.SystemClock),
		log:     zap.L().With(zap.String("component", "dataset.remote")),
	}
}

// Fetch retrieves one dataset scoped to the viewport. Failed fetches are
// retried for transient causes only; a tripped breaker fails fast.
func (r *Remote) Fetch(ctx context.Context, id string, b Bounds) (*geojson.FeatureCollection, error) {
	key := flightKey(id, b)
	v, err, _ := r.flight.Do(key, func() (any, error) {
		var fc *geojson.FeatureCollection
		err := r.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			fc, err = resilience.DoVal(ctx, resilience.SystemClock, r.opts.Retry, func(ctx context.Context) (*geojson.FeatureCollection, error) {
				return r.fetchOnce(ctx, id, b)
			})
			return err
		})
		return fc, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*geojson.FeatureCollection), nil
}

func (r *Remote) fetchOnce(ctx context.Context, id string, b Bounds) (*geojson.FeatureCollection, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "dataset: rate limiter wait")
	}

	u, err := url.Parse(r.opts.BaseURL + "/datasets/" + id)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: parse url for %s", id)
	}
	q := u.Query()
	if !b.Zero() {
		q.Set("north", formatCoord(b.North))
		q.Set("south", formatCoord(b.South))
		q.Set("east", formatCoord(b.East))
		q.Set("west", formatCoord(b.West))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: create request")
	}
	req.Header.Set("User-Agent", r.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("dataset: http %d from %s", resp.StatusCode, u.String())
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "dataset: read body"), 0)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrapf(err, "dataset: decode envelope for %s", id)
	}
	if !env.Success {
		return nil, eris.Errorf("dataset: upstream error for %s: %s", id, env.Error)
	}

	fc, err := geojson.UnmarshalFeatureCollection(env.Data)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: decode features for %s", id)
	}
	return fc, nil
}

func flightKey(id string, b Bounds) string {
	return fmt.Sprintf("%s|%s,%s,%s,%s", id,
		formatCoord(b.North), formatCoord(b.South), formatCoord(b.East), formatCoord(b.West))
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Service resolves datasets remote-first with a bundled fallback, so a
// viewport request always yields features even when upstream is down.
type Service struct {
	remote *Remote
	log    *zap.Logger
}

// NewService creates a dataset service. A nil remote serves bundled data only.
func NewService(remote *Remote) *Service {
	return &Service{
		remote: remote,
		log:    zap.L().With(zap.String("component", "dataset.service")),
	}
}

// Load returns a dataset's parsed collection for the viewport. Remote
// failures degrade to the bundled copy filtered to the same bounds.
func (s *Service) Load(ctx context.Context, id string, b Bounds) (*Collection, error) {
	meta, ok := MetaByID(id)
	if !ok {
		return nil, eris.Errorf("dataset: unknown dataset %q", id)
	}

	if s.remote != nil {
		fc, err := s.remote.Fetch(ctx, id, b)
		if err == nil {
			return ParseCollection(meta, fc), nil
		}
		s.log.Warn("remote fetch failed, serving bundled data",
			zap.String("dataset", id),
			zap.Error(err),
		)
	}

	cols, err := LoadBundled(ctx)
	if err != nil {
		return nil, err
	}
	col := cols[id]
	return ParseCollection(meta, FilterBounds(col.FC, b)), nil
}

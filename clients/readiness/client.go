package readiness

import (
	"context"
	"crypto/tls"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/opentracing-contrib/go-stdlib/nethttp"
	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog/log"
	"github.com/sethgrid/pester"
	yaml "gopkg.in/yaml.v2"
)

// Client checks a deployment environment for health and fetches the metrics that decide on canary promotion
//go:generate mockgen -package=readiness -destination ./mock.go -source=client.go
type Client interface {
	CheckHealth(ctx context.Context, environment api.Environment, timeout time.Duration) error
	GetMetrics(ctx context.Context, environment api.Environment) (map[string]float64, error)
}

// NewClient returns a readiness.Client polling the health check url every interval
func NewClient(interval time.Duration) Client {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	return &client{
		interval: interval,
		httpClient: &http.Client{
			Timeout: 2 * time.Second,
			Transport: &nethttp.Transport{
				RoundTripper: &http.Transport{
					TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
				},
			},
		},
	}
}

type client struct {
	interval   time.Duration
	httpClient *http.Client
}

func (c *client) CheckHealth(ctx context.Context, environment api.Environment, timeout time.Duration) (err error) {

	span, ctx := opentracing.StartSpanFromContext(ctx, "CheckHealth")
	defer span.Finish()
	span.SetTag("environment", environment.Name)

	if environment.HealthCheckURL == "" {
		log.Info().Msgf("[%v] No health check url configured, assuming healthy", environment.Name)
		return nil
	}
	if timeout <= 0 {
		return fmt.Errorf("Timeout should be larger than zero")
	}

	log.Info().Msgf("[%v] Running health check against %v", environment.Name, environment.HealthCheckURL)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// keep sending requests until one succeeds or the timeout expires
	for {
		err = c.getHealth(ctx, environment.HealthCheckURL)
		if err == nil {
			log.Info().Msgf("[%v] Health check against %v succeeded in time", environment.Name, environment.HealthCheckURL)
			return nil
		}

		log.Warn().Err(err).Msgf("[%v] Health check against %v failed", environment.Name, environment.HealthCheckURL)

		select {
		case <-ctx.Done():
			return fmt.Errorf("Health check against %v did not succeed in %v: %w", environment.HealthCheckURL, timeout, err)
		case <-time.After(c.interval):
		}
	}
}

func (c *client) getHealth(ctx context.Context, url string) error {

	request, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	request = request.WithContext(ctx)

	if span := opentracing.SpanFromContext(ctx); span != nil {
		var ht *nethttp.Tracer
		request, ht = nethttp.TraceRequest(span.Tracer(), request)
		defer ht.Finish()
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("Health check returned status code %v", response.StatusCode)
	}

	return nil
}

func (c *client) GetMetrics(ctx context.Context, environment api.Environment) (metrics map[string]float64, err error) {

	span, ctx := opentracing.StartSpanFromContext(ctx, "GetMetrics")
	defer span.Finish()
	span.SetTag("environment", environment.Name)

	metrics = map[string]float64{}
	if environment.MetricsURL == "" {
		log.Warn().Msgf("[%v] No metrics url configured, canary gates have no metrics to evaluate", environment.Name)
		return metrics, nil
	}

	pesterClient := pester.NewExtendedClient(&http.Client{Transport: &nethttp.Transport{}})
	pesterClient.MaxRetries = 3
	pesterClient.Backoff = pester.ExponentialJitterBackoff
	pesterClient.KeepLog = true
	pesterClient.Timeout = 10 * time.Second

	request, err := http.NewRequest("GET", environment.MetricsURL, nil)
	if err != nil {
		return nil, err
	}
	request = request.WithContext(ctx)

	// collect additional information on setting up connections
	request, ht := nethttp.TraceRequest(span.Tracer(), request)
	request.Header.Add("Accept", "application/json")

	response, err := pesterClient.Do(request)
	if err != nil {
		log.Error().Err(err).Str("logs", pesterClient.LogString()).Msgf("[%v] Failed fetching metrics from %v", environment.Name, environment.MetricsURL)
		return nil, err
	}
	defer response.Body.Close()
	ht.Finish()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Fetching metrics from %v returned status code %v", environment.MetricsURL, response.StatusCode)
	}

	body, err := ioutil.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	// json is valid yaml, so this accepts either
	if err = yaml.Unmarshal(body, &metrics); err != nil {
		return nil, fmt.Errorf("Metrics from %v should be a map of metric names to numbers: %w", environment.MetricsURL, err)
	}

	log.Debug().Interface("metrics", metrics).Msgf("[%v] Fetched metrics from %v", environment.Name, environment.MetricsURL)

	return metrics, nil
}

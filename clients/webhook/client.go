package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/config"
	"github.com/opentracing-contrib/go-stdlib/nethttp"
	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog/log"
	"github.com/sethgrid/pester"
)

// Client posts json payloads to a configured url, retrying with exponential backoff
//go:generate mockgen -package=webhook -destination ./mock.go -source=client.go
type Client interface {
	Post(ctx context.Context, eventType string, payload interface{}) error
	IsConfigured() bool
}

// NewClient returns a webhook.Client; without url every Post is a no-op
func NewClient(config config.WebhookConfig) Client {
	return &client{
		config: config,
	}
}

type client struct {
	config config.WebhookConfig
}

func (c *client) IsConfigured() bool {
	return c.config.URL != ""
}

func (c *client) Post(ctx context.Context, eventType string, payload interface{}) (err error) {

	if !c.IsConfigured() {
		log.Debug().Msgf("No webhook url configured, skipping %v event", eventType)
		return nil
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "PostWebhook")
	defer span.Finish()
	span.SetTag("event", eventType)

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msgf("Failed marshalling %v event", eventType)
		return err
	}

	// create client, in order to add headers
	pesterClient := pester.NewExtendedClient(&http.Client{Transport: &nethttp.Transport{}})
	pesterClient.MaxRetries = c.config.MaxRetries
	pesterClient.Backoff = pester.ExponentialJitterBackoff
	pesterClient.KeepLog = true
	pesterClient.Timeout = c.config.Timeout
	if pesterClient.Timeout <= 0 {
		pesterClient.Timeout = 10 * time.Second
	}

	request, err := http.NewRequest("POST", c.config.URL, bytes.NewReader(data))
	if err != nil {
		log.Error().Err(err).Msgf("Failed creating http request for %v event", eventType)
		return err
	}

	// add tracing context
	request = request.WithContext(ctx)

	// collect additional information on setting up connections
	request, ht := nethttp.TraceRequest(span.Tracer(), request)

	// add headers
	for k, v := range c.config.Headers {
		request.Header.Set(k, v)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("X-Estafette-Event", eventType)

	// perform actual request
	response, err := pesterClient.Do(request)
	if err != nil {
		log.Error().Err(err).Str("logs", pesterClient.LogString()).Msgf("Failed posting %v event to %v", eventType, c.config.URL)
		return err
	}
	defer response.Body.Close()
	ht.Finish()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("Posting %v event to %v returned status code %v", eventType, c.config.URL, response.StatusCode)
	}

	log.Debug().Str("logs", pesterClient.LogString()).Msgf("Successfully posted %v event to %v", eventType, c.config.URL)

	return nil
}

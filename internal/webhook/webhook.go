// Package webhook pushes class achievement events to an external
// endpoint. Delivery is fire and forget: a failed emit is logged and
// never propagated into the import that triggered it.
package webhook

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"rhythm-tracker/internal/constants"
	"rhythm-tracker/internal/domain"
)

type Emitter interface {
	EmitClassAchievements(userID int, deltas []domain.ClassDelta)
}

// HTTPEmitter posts class deltas as JSON to a configured URL.
type HTTPEmitter struct {
	url    string
	client *fasthttp.Client
	logger zerolog.Logger
}

func NewHTTPEmitter(url string, logger zerolog.Logger) *HTTPEmitter {
	return &HTTPEmitter{
		url: url,
		client: &fasthttp.Client{
			ReadTimeout:  constants.ExternalAPITimeout,
			WriteTimeout: constants.ExternalAPITimeout,
		},
		logger: logger,
	}
}

type classPayload struct {
	UserID int                 `json:"userID"`
	Deltas []domain.ClassDelta `json:"deltas"`
}

func (e *HTTPEmitter) EmitClassAchievements(userID int, deltas []domain.ClassDelta) {
	if len(deltas) == 0 {
		return
	}

	body, err := json.Marshal(classPayload{UserID: userID, Deltas: deltas})
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to marshal webhook payload")
		return
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(e.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := e.client.Do(req, resp); err != nil {
		e.logger.Warn().Err(err).Str("url", e.url).Msg("webhook delivery failed")
		return
	}

	if resp.StatusCode() >= 300 {
		e.logger.Warn().
			Int("status", resp.StatusCode()).
			Str("url", e.url).
			Msg(fmt.Sprintf("webhook endpoint rejected class event for user %d", userID))
	}
}

// NoopEmitter is used when no webhook URL is configured.
type NoopEmitter struct{}

func (NoopEmitter) EmitClassAchievements(int, []domain.ClassDelta) {}

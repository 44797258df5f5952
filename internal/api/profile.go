// Package api holds clients for external score services.
package api

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"rhythm-tracker/internal/constants"
	"rhythm-tracker/internal/converter"
	"rhythm-tracker/internal/domain"
)

// ProfileClient fetches externally maintained player profiles, used to
// pick up service-side class data (dan ranks and the like) that cannot
// be derived from scores.
type ProfileClient struct {
	baseURL string
	apiKey  string
	client  *fasthttp.Client
	logger  zerolog.Logger
}

func NewProfileClient(baseURL, apiKey string, logger zerolog.Logger) *ProfileClient {
	return &ProfileClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &fasthttp.Client{
			ReadTimeout:  constants.ExternalAPITimeout,
			WriteTimeout: constants.ExternalAPITimeout,
		},
		logger: logger,
	}
}

type profileResponse struct {
	Classes map[string]int `json:"classes"`
}

// GetUserClasses pulls the remote service's class sets for one user on
// a (game, playtype).
func (c *ProfileClient) GetUserClasses(game domain.Game, playtype domain.Playtype, userID int) (map[string]int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/users/%d/games/%s/%s/profile", c.baseURL, userID, game, playtype))
	req.Header.SetMethod(fasthttp.MethodGet)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	if err := c.client.DoTimeout(req, resp, constants.ExternalAPITimeout); err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}

	if resp.StatusCode() == fasthttp.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("profile service returned status %d", resp.StatusCode())
	}

	var parsed profileResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode profile response: %w", err)
	}

	return parsed.Classes, nil
}

// Resolver adapts the client into a class resolver for import types
// whose source service exposes profile classes.
func (c *ProfileClient) Resolver() converter.ClassResolver {
	return func(_ context.Context, game domain.Game, playtype domain.Playtype, userID int, _ map[string]*float64) (map[string]int, error) {
		classes, err := c.GetUserClasses(game, playtype, userID)
		if err != nil {
			// Remote class data is best effort; losing it must not fail
			// the import.
			c.logger.Warn().Err(err).Int("user_id", userID).Msg("failed to fetch remote classes")
			return nil, nil
		}
		return classes, nil
	}
}

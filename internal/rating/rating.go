// Package rating computes game-specific calculated data for scores.
// Ratings are best-effort enrichment: a score with no ratings is still
// a valid score, and an unregistered playtype yields an empty stat set
// rather than an error.
package rating

import (
	"context"

	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/repository"
)

type calcFunc func(ctx context.Context, e *Engine, chart *domain.Chart, dry *domain.DryScore, log zerolog.Logger) map[string]float64

type gamePT struct {
	game     domain.Game
	playtype domain.Playtype
}

// calcFuncs is the static dispatch table. Every function here must be
// deterministic given the same chart, dry score and reference-data
// snapshot, so recomputes and dedup stay sound.
var calcFuncs = map[gamePT]calcFunc{
	{domain.GameIIDX, domain.PlaytypeSP}:         calculateDataIIDX,
	{domain.GameIIDX, domain.PlaytypeDP}:         calculateDataIIDX,
	{domain.GameSDVX, domain.PlaytypeSingle}:     calculateDataSDVXOrUSC,
	{domain.GameUSC, domain.PlaytypeKeyboard}:    calculateDataSDVXOrUSC,
	{domain.GameUSC, domain.PlaytypeController}:  calculateDataSDVXOrUSC,
	{domain.GameChunithm, domain.PlaytypeSingle}: calculateDataChunithm,
	{domain.GameGitadora, domain.PlaytypeGita}:   calculateDataGitadora,
	{domain.GameGitadora, domain.PlaytypeDora}:   calculateDataGitadora,
}

type Engine struct {
	bpi    *repository.BPIRepository
	logger zerolog.Logger
}

func NewEngine(bpi *repository.BPIRepository, logger zerolog.Logger) *Engine {
	return &Engine{bpi: bpi, logger: logger}
}

// CalculateDataForGamePT dispatches to the registered stat function
// for (game, playtype). An unregistered combination logs an error and
// returns an empty map.
func (e *Engine) CalculateDataForGamePT(ctx context.Context, game domain.Game, playtype domain.Playtype, chart *domain.Chart, dry *domain.DryScore, log zerolog.Logger) map[string]float64 {
	fn, ok := calcFuncs[gamePT{game, playtype}]
	if !ok {
		log.Error().
			Str("game", string(game)).
			Str("playtype", string(playtype)).
			Msg("no calculated-data function registered, returning empty stats")
		return map[string]float64{}
	}

	return fn(ctx, e, chart, dry, log)
}

package converter

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/gameconfig"
	"rhythm-tracker/internal/repository"
)

// ImportTypeBatchManual is the canonical JSON batch format clients
// and IR hooks submit in. The direct-manual IR variant shares its
// schema and converter.
const (
	ImportTypeBatchManual  = "file/batch-manual"
	ImportTypeDirectManual = "ir/direct-manual"
)

type batchManualMeta struct {
	Game     string `json:"game"`
	Playtype string `json:"playtype"`
	Service  string `json:"service"`
	Version  string `json:"version"`
}

type batchManualPayload struct {
	Meta    batchManualMeta   `json:"meta"`
	Scores  []json.RawMessage `json:"scores"`
	Classes map[string]int    `json:"classes,omitempty"`
}

type batchManualScore struct {
	Identifier   string            `json:"identifier"`
	MatchType    string            `json:"matchType"`
	Difficulty   string            `json:"difficulty"`
	Score        int               `json:"score"`
	Lamp         string            `json:"lamp"`
	TimeAchieved int64             `json:"timeAchieved,omitempty"`
	Comment      string            `json:"comment,omitempty"`
	Judgements   domain.Judgements `json:"judgements,omitempty"`
	HitMeta      domain.HitMeta    `json:"hitMeta,omitempty"`
}

// BatchManual builds the batch-manual import type. The chart
// repository is the converter's only side-effecting dependency, used
// strictly for chart/song resolution.
func BatchManual(name string, charts *repository.ChartRepository) *ImportType {
	return &ImportType{
		Name:              name,
		Parse:             parseBatchManual,
		Convert:           convertBatchManual(charts),
		SupportsOrphaning: name == ImportTypeDirectManual,
	}
}

func parseBatchManual(payload []byte, log zerolog.Logger) (*ParseResult, error) {
	var body batchManualPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("could not parse batch-manual payload: %w", err)
	}

	game := domain.Game(body.Meta.Game)
	playtype := domain.Playtype(body.Meta.Playtype)

	if gameconfig.Get(game, playtype) == nil {
		return nil, fmt.Errorf("unsupported game/playtype %s:%s", body.Meta.Game, body.Meta.Playtype)
	}
	if body.Meta.Service == "" {
		return nil, fmt.Errorf("batch-manual meta.service is required")
	}
	if body.Scores == nil {
		return nil, fmt.Errorf("batch-manual payload has no scores array")
	}

	result := &ParseResult{
		Records: body.Scores,
		Context: BatchContext{
			Game:     game,
			Playtype: playtype,
			Service:  body.Meta.Service,
			Version:  body.Meta.Version,
		},
	}

	// Sources that report classes directly (dan ranks and the like)
	// hand them to UGS recomputation through the batch's resolver.
	if len(body.Classes) > 0 {
		classes := body.Classes
		result.ClassResolver = func(context.Context, domain.Game, domain.Playtype, int, map[string]*float64) (map[string]int, error) {
			return classes, nil
		}
	}

	return result, nil
}

func convertBatchManual(charts *repository.ChartRepository) Converter {
	return func(ctx context.Context, record json.RawMessage, bctx BatchContext, log zerolog.Logger) (*ConversionResult, error) {
		var data batchManualScore
		if err := json.Unmarshal(record, &data); err != nil {
			return nil, &InvalidScoreError{Msg: fmt.Sprintf("malformed score record: %v", err)}
		}

		cfg := gameconfig.Get(bctx.Game, bctx.Playtype)

		lampIndex, err := cfg.LampIndex(data.Lamp)
		if err != nil {
			return nil, &InvalidScoreError{Msg: err.Error()}
		}

		song, chart, err := resolveBatchManualChart(ctx, charts, &data, bctx, record)
		if err != nil {
			return nil, err
		}

		grade, percent, err := gameconfig.GradeAndPercent(bctx.Game, data.Score, chart)
		if err != nil {
			return nil, &InvalidScoreError{Msg: err.Error()}
		}

		gradeIndex, err := cfg.GradeIndex(grade)
		if err != nil {
			return nil, &InternalError{Msg: fmt.Sprintf("derived grade not in grade table: %v", err)}
		}

		dry := &domain.DryScore{
			Game:         bctx.Game,
			Service:      bctx.Service,
			Comment:      data.Comment,
			TimeAchieved: data.TimeAchieved,
			ScoreData: domain.ScoreData{
				Score:      data.Score,
				Percent:    percent,
				Grade:      grade,
				GradeIndex: gradeIndex,
				Lamp:       data.Lamp,
				LampIndex:  lampIndex,
				Judgements: data.Judgements,
				HitMeta:    data.HitMeta,
			},
		}

		return &ConversionResult{Song: song, Chart: chart, DryScore: dry}, nil
	}
}

func resolveBatchManualChart(ctx context.Context, charts *repository.ChartRepository, data *batchManualScore, bctx BatchContext, record json.RawMessage) (*domain.Song, *domain.Chart, error) {
	switch data.MatchType {
	case "songID":
		var songID int
		if _, err := fmt.Sscanf(data.Identifier, "%d", &songID); err != nil {
			return nil, nil, &InvalidScoreError{Msg: fmt.Sprintf("identifier %q is not a song ID", data.Identifier)}
		}

		song, err := charts.GetSong(ctx, bctx.Game, songID)
		if err != nil {
			return nil, nil, err
		}
		if song == nil {
			return nil, nil, &DataNotFoundError{
				Msg:         fmt.Sprintf("no song with ID %d for %s", songID, bctx.Game),
				Fingerprint: fmt.Sprintf("%s|song:%d|%s|%s", bctx.Game, songID, bctx.Playtype, data.Difficulty),
				Data:        record,
			}
		}

		return findChartForSong(ctx, charts, song, data, bctx, record)

	case "songTitle":
		song, err := charts.GetSongByTitle(ctx, bctx.Game, data.Identifier)
		if err != nil {
			return nil, nil, err
		}
		if song == nil {
			return nil, nil, &DataNotFoundError{
				Msg:         fmt.Sprintf("no song titled %q for %s", data.Identifier, bctx.Game),
				Fingerprint: fmt.Sprintf("%s|title:%s|%s|%s", bctx.Game, data.Identifier, bctx.Playtype, data.Difficulty),
				Data:        record,
			}
		}

		return findChartForSong(ctx, charts, song, data, bctx, record)

	case "chartHash":
		chart, err := charts.GetChartByHash(ctx, bctx.Game, data.Identifier, bctx.Playtype)
		if err != nil {
			return nil, nil, err
		}
		if chart == nil {
			return nil, nil, &DataNotFoundError{
				Msg:         fmt.Sprintf("chart %s is not known (orphan candidate)", data.Identifier),
				Fingerprint: ChartFingerprint(bctx.Game, data.Identifier, bctx.Playtype),
				Data:        record,
				Orphan: &domain.OrphanChart{
					Fingerprint: ChartFingerprint(bctx.Game, data.Identifier, bctx.Playtype),
					Game:        bctx.Game,
					Playtype:    bctx.Playtype,
					Name:        fmt.Sprintf("Unknown Chart (%s)", data.Identifier),
					Chart: domain.Chart{
						Difficulty: data.Difficulty,
						HashSHA1:   data.Identifier,
					},
					Song: domain.Song{Title: fmt.Sprintf("Unknown Song (%s)", data.Identifier)},
				},
			}
		}

		song, err := charts.GetSong(ctx, bctx.Game, chart.SongID)
		if err != nil {
			return nil, nil, err
		}
		if song == nil {
			// Song-chart desync is our bug, not the submitter's.
			return nil, nil, &InternalError{
				Msg: fmt.Sprintf("song-chart desync: chart %s references missing song %d", chart.ChartID, chart.SongID),
			}
		}

		return song, chart, nil

	default:
		return nil, nil, &InvalidScoreError{Msg: fmt.Sprintf("unknown matchType %q", data.MatchType)}
	}
}

func findChartForSong(ctx context.Context, charts *repository.ChartRepository, song *domain.Song, data *batchManualScore, bctx BatchContext, record json.RawMessage) (*domain.Song, *domain.Chart, error) {
	chart, err := charts.GetChartForSong(ctx, bctx.Game, song.ID, bctx.Playtype, data.Difficulty)
	if err != nil {
		return nil, nil, err
	}
	if chart == nil {
		return nil, nil, &DataNotFoundError{
			Msg:         fmt.Sprintf("song %d has no %s %s chart", song.ID, bctx.Playtype, data.Difficulty),
			Fingerprint: fmt.Sprintf("%s|song:%d|%s|%s", bctx.Game, song.ID, bctx.Playtype, data.Difficulty),
			Data:        record,
		}
	}
	return song, chart, nil
}

// ChartFingerprint is the canonical orphan-queue key for a
// hash-identified chart.
func ChartFingerprint(game domain.Game, hash string, playtype domain.Playtype) string {
	return fmt.Sprintf("%s|%s|%s", game, hash, playtype)
}

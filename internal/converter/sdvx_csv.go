package converter

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/gameconfig"
	"rhythm-tracker/internal/repository"
)

// ImportTypeSDVXCSV is the e-amusement style CSV export for SDVX:
// title, difficulty, score, lamp per row, with a header line.
const ImportTypeSDVXCSV = "file/sdvx-csv"

type sdvxCSVRow struct {
	Title      string `json:"title"`
	Difficulty string `json:"difficulty"`
	Score      int    `json:"score"`
	Lamp       string `json:"lamp"`
}

func SDVXCSV(charts *repository.ChartRepository) *ImportType {
	return &ImportType{
		Name:    ImportTypeSDVXCSV,
		Parse:   parseSDVXCSV,
		Convert: convertSDVXCSV(charts),
	}
}

// parseSDVXCSV validates the CSV shape up front. Structural problems
// (wrong column count, empty file) are whole-batch fatal; per-row
// value problems surface later as InvalidScore conversion failures so
// one bad row cannot sink the file.
func parseSDVXCSV(payload []byte, log zerolog.Logger) (*ParseResult, error) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = 4

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("could not parse SDVX CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("SDVX CSV has no score rows")
	}

	// Skip the header row.
	records := make([]json.RawMessage, 0, len(rows)-1)
	for _, row := range rows[1:] {
		score, convErr := strconv.Atoi(strings.TrimSpace(row[2]))
		if convErr != nil {
			score = -1 // out of bounds; rejected per-record at convert time
		}
		rec, marshalErr := json.Marshal(sdvxCSVRow{
			Title:      strings.TrimSpace(row[0]),
			Difficulty: strings.TrimSpace(row[1]),
			Score:      score,
			Lamp:       strings.TrimSpace(row[3]),
		})
		if marshalErr != nil {
			return nil, fmt.Errorf("could not encode CSV row: %w", marshalErr)
		}
		records = append(records, rec)
	}

	return &ParseResult{
		Records: records,
		Context: BatchContext{
			Game:     domain.GameSDVX,
			Playtype: domain.PlaytypeSingle,
			Service:  "e-amusement CSV",
		},
	}, nil
}

func convertSDVXCSV(charts *repository.ChartRepository) Converter {
	return func(ctx context.Context, record json.RawMessage, bctx BatchContext, log zerolog.Logger) (*ConversionResult, error) {
		var row sdvxCSVRow
		if err := json.Unmarshal(record, &row); err != nil {
			return nil, &InvalidScoreError{Msg: fmt.Sprintf("malformed CSV row: %v", err)}
		}

		cfg := gameconfig.Get(bctx.Game, bctx.Playtype)

		lampIndex, err := cfg.LampIndex(row.Lamp)
		if err != nil {
			return nil, &InvalidScoreError{Msg: err.Error()}
		}

		song, err := charts.GetSongByTitle(ctx, bctx.Game, row.Title)
		if err != nil {
			return nil, err
		}
		if song == nil {
			return nil, &DataNotFoundError{
				Msg:         fmt.Sprintf("no SDVX song titled %q", row.Title),
				Fingerprint: fmt.Sprintf("%s|title:%s|%s|%s", bctx.Game, row.Title, bctx.Playtype, row.Difficulty),
				Data:        record,
			}
		}

		chart, err := charts.GetChartForSong(ctx, bctx.Game, song.ID, bctx.Playtype, row.Difficulty)
		if err != nil {
			return nil, err
		}
		if chart == nil {
			return nil, &DataNotFoundError{
				Msg:         fmt.Sprintf("song %q has no %s chart", row.Title, row.Difficulty),
				Fingerprint: fmt.Sprintf("%s|song:%d|%s|%s", bctx.Game, song.ID, bctx.Playtype, row.Difficulty),
				Data:        record,
			}
		}

		grade, percent, err := gameconfig.GradeAndPercent(bctx.Game, row.Score, chart)
		if err != nil {
			return nil, &InvalidScoreError{Msg: err.Error()}
		}
		gradeIndex, err := cfg.GradeIndex(grade)
		if err != nil {
			return nil, &InternalError{Msg: fmt.Sprintf("derived grade not in grade table: %v", err)}
		}

		dry := &domain.DryScore{
			Game:    bctx.Game,
			Service: bctx.Service,
			ScoreData: domain.ScoreData{
				Score:      row.Score,
				Percent:    percent,
				Grade:      grade,
				GradeIndex: gradeIndex,
				Lamp:       row.Lamp,
				LampIndex:  lampIndex,
			},
		}

		return &ConversionResult{Song: song, Chart: chart, DryScore: dry}, nil
	}
}

package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"rhythm-tracker/internal/constants"
	"rhythm-tracker/internal/converter"
	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/logger"
	"rhythm-tracker/internal/repository"
	"rhythm-tracker/internal/scoreid"
)

// session accumulates one import run's results. touched tracks which
// (user, chart) pairs gained scores; orphan replay can land scores for
// users other than the submitter, and their PBs need recomputing too.
type session struct {
	importID   string
	userID     int
	userIntent bool
	importType *converter.ImportType
	bctx       converter.BatchContext

	scoreIDs []string
	errs     []domain.ImportError
	touched  map[int]map[string]struct{}
}

func (s *session) addError(errType domain.ImportErrType, msg string, record []byte) {
	s.errs = append(s.errs, domain.ImportError{
		Type:    errType,
		Message: msg,
		Record:  truncateRecord(record),
	})
}

func (s *session) markTouched(userID int, chartID string) {
	if s.touched[userID] == nil {
		s.touched[userID] = make(map[string]struct{})
	}
	s.touched[userID][chartID] = struct{}{}
}

func truncateRecord(record []byte) string {
	const maxLen = 200
	if len(record) > maxLen {
		return string(record[:maxLen])
	}
	return string(record)
}

type outcome struct {
	record json.RawMessage
	result *converter.ConversionResult
	err    error
}

func (i *Importer) run(ctx context.Context, importID string, userID int, it *converter.ImportType, payload []byte, userIntent bool, log zerolog.Logger) (*domain.ImportDocument, error) {
	started := time.Now()

	i.tracker.set(importID, StatusParsing)
	parsed, err := it.Parse(payload, log)
	if err != nil {
		return nil, fmt.Errorf("parse failed: %w", err)
	}

	sess := &session{
		importID:   importID,
		userID:     userID,
		userIntent: userIntent,
		importType: it,
		bctx:       parsed.Context,
		touched:    make(map[int]map[string]struct{}),
	}

	i.tracker.set(importID, StatusConverting)
	outcomes := i.convertAll(ctx, it, parsed, log)

	i.tracker.set(importID, StatusPersisting)
	for _, o := range outcomes {
		if o.err != nil {
			i.recordFailure(ctx, sess, o, log)
			continue
		}
		i.persistScore(ctx, sess, userID, o.result, log)
	}

	resolver := parsed.ClassResolver
	if resolver == nil {
		resolver = it.ClassResolver
	}

	i.tracker.set(importID, StatusAggregating)
	deltas, err := i.aggregate(ctx, sess, resolver, log)
	if err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}

	doc := &domain.ImportDocument{
		ImportID:     importID,
		UserID:       userID,
		UserIntent:   userIntent,
		ImportType:   it.Name,
		Game:         parsed.Context.Game,
		ScoreIDs:     sess.scoreIDs,
		Errors:       sess.errs,
		ClassDeltas:  deltas,
		TimeStarted:  started,
		TimeFinished: time.Now(),
	}

	if err := i.imports.Insert(ctx, doc); err != nil {
		return nil, err
	}

	i.tracker.set(importID, StatusDone)
	log.Info().
		Int("scores", len(doc.ScoreIDs)).
		Int("errors", len(doc.Errors)).
		Int("class_deltas", len(doc.ClassDeltas)).
		Dur("took", doc.TimeFinished.Sub(doc.TimeStarted)).
		Msg("import finished")

	return doc, nil
}

// convertAll fans record conversion out. Conversion is read-only, so
// per-record order does not matter; outcomes keep the input ordering
// for stable error reporting.
func (i *Importer) convertAll(ctx context.Context, it *converter.ImportType, parsed *converter.ParseResult, log zerolog.Logger) []outcome {
	outcomes := make([]outcome, len(parsed.Records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.ImportConcurrency)

	for idx, record := range parsed.Records {
		g.Go(func() error {
			res, err := it.Convert(gctx, record, parsed.Context, log)
			outcomes[idx] = outcome{record: record, result: res, err: err}
			return nil
		})
	}

	// Workers never return errors; failures live in their outcome.
	_ = g.Wait()

	return outcomes
}

func (i *Importer) recordFailure(ctx context.Context, sess *session, o outcome, log zerolog.Logger) {
	var (
		invalid  *converter.InvalidScoreError
		notFound *converter.DataNotFoundError
		internal *converter.InternalError
	)

	switch {
	case errors.As(o.err, &invalid):
		sess.addError(domain.ImportErrInvalidScore, invalid.Msg, o.record)

	case errors.As(o.err, &notFound):
		if sess.importType.SupportsOrphaning && notFound.Orphan != nil {
			i.routeOrphan(ctx, sess, notFound, log)
			return
		}
		sess.addError(domain.ImportErrDataNotFound, notFound.Msg, o.record)

	case errors.As(o.err, &internal):
		logger.Severe(log).Str("detail", internal.Msg).Msg("internal conversion failure")
		sess.addError(domain.ImportErrInternal, internal.Msg, o.record)

	default:
		logger.Severe(log).Err(o.err).Msg("unclassified conversion failure")
		sess.addError(domain.ImportErrInternal, o.err.Error(), o.record)
	}
}

// persistScore finishes one converted record: stamps identity and
// calculated data, inserts unless the same score already exists, and
// marks the (user, chart) pair for aggregation. Duplicates are skipped
// silently; resubmitting an old export is normal, not an error.
func (i *Importer) persistScore(ctx context.Context, sess *session, userID int, res *converter.ConversionResult, log zerolog.Logger) {
	chart := res.Chart
	dry := res.DryScore

	dry.ImportType = sess.importType.Name
	calcData := i.engine.CalculateDataForGamePT(ctx, dry.Game, chart.Playtype, chart, dry, log)

	scoreID := scoreid.CreateScoreID(userID, dry, chart.ChartID)

	existing, err := i.scores.GetWithScoreID(ctx, scoreID)
	if err != nil {
		logger.Severe(log).Err(err).Str("score_id", scoreID).Msg("dedup lookup failed")
		sess.addError(domain.ImportErrInternal, err.Error(), nil)
		return
	}
	if existing != nil {
		return
	}

	score := &domain.Score{
		ScoreID:        scoreID,
		UserID:         userID,
		ChartID:        chart.ChartID,
		SongID:         chart.SongID,
		Game:           dry.Game,
		Playtype:       chart.Playtype,
		ScoreData:      dry.ScoreData,
		CalculatedData: calcData,
		ImportType:     sess.importType.Name,
		Service:        dry.Service,
		Comment:        dry.Comment,
		TimeAchieved:   dry.TimeAchieved,
		TimeAdded:      time.Now(),
	}

	err = i.scores.Insert(ctx, score)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		// Lost the insert race to an identical record in this batch;
		// same outcome as the pre-check.
		return
	case err != nil:
		logger.Severe(log).Err(err).Str("score_id", scoreID).Msg("score insert failed")
		sess.addError(domain.ImportErrInternal, err.Error(), nil)
		return
	}

	sess.scoreIDs = append(sess.scoreIDs, scoreID)
	sess.markTouched(userID, chart.ChartID)
}

// routeOrphan queues the unconverted record against its chart
// fingerprint and counts the sighting. If this sighting promotes the
// chart, every queued score for it is replayed immediately.
func (i *Importer) routeOrphan(ctx context.Context, sess *session, dnf *converter.DataNotFoundError, log zerolog.Logger) {
	bctxRaw, err := json.Marshal(sess.bctx)
	if err != nil {
		sess.addError(domain.ImportErrInternal, err.Error(), dnf.Data)
		return
	}

	err = i.orphans.QueueScore(ctx, &domain.OrphanScore{
		Fingerprint: dnf.Fingerprint,
		UserID:      sess.userID,
		Game:        sess.bctx.Game,
		ImportType:  sess.importType.Name,
		Data:        dnf.Data,
		Context:     bctxRaw,
	})
	if err != nil {
		logger.Severe(log).Err(err).Str("fingerprint", dnf.Fingerprint).Msg("failed to queue orphan score")
		sess.addError(domain.ImportErrInternal, err.Error(), dnf.Data)
		return
	}

	promoted, err := i.orphans.HandleOrphanChart(ctx, dnf.Orphan, sess.userID)
	if err != nil {
		logger.Severe(log).Err(err).Str("fingerprint", dnf.Fingerprint).Msg("orphan handling failed")
		sess.addError(domain.ImportErrInternal, err.Error(), dnf.Data)
		return
	}

	if promoted != nil {
		i.replayOrphanScores(ctx, sess, dnf.Fingerprint, log)
	}
}

// replayOrphanScores pushes the drained queue back through conversion
// now that the chart exists. Replayed scores may belong to other
// users; their PBs and stats are folded into this import's aggregation
// pass. A record that still fails here is dropped with a log only, its
// submitter's import finished long ago.
func (i *Importer) replayOrphanScores(ctx context.Context, sess *session, fingerprint string, log zerolog.Logger) {
	queued, err := i.orphans.DrainScores(ctx, fingerprint)
	if err != nil {
		logger.Severe(log).Err(err).Str("fingerprint", fingerprint).Msg("failed to drain orphan scores")
		return
	}

	for _, os := range queued {
		it := i.registry.Get(os.ImportType)
		if it == nil {
			log.Warn().Str("import_type", os.ImportType).Msg("orphan score from unregistered import type dropped")
			continue
		}

		var bctx converter.BatchContext
		if err := json.Unmarshal(os.Context, &bctx); err != nil {
			log.Warn().Err(err).Str("orphan_id", os.OrphanID).Msg("orphan score has corrupt context, dropped")
			continue
		}

		res, err := it.Convert(ctx, os.Data, bctx, log)
		if err != nil {
			log.Warn().Err(err).Str("orphan_id", os.OrphanID).Msg("orphan score replay failed, dropped")
			continue
		}

		i.persistScore(ctx, sess, os.UserID, res, log)
	}
}

// aggregate recomputes PBs and profile stats for every user the import
// touched. Only the submitting user's class deltas go on the import
// document, and only they see the batch's class resolver.
func (i *Importer) aggregate(ctx context.Context, sess *session, resolver converter.ClassResolver, log zerolog.Logger) ([]domain.ClassDelta, error) {
	var submitterDeltas []domain.ClassDelta

	for userID, chartSet := range sess.touched {
		chartIDs := make([]string, 0, len(chartSet))
		for chartID := range chartSet {
			chartIDs = append(chartIDs, chartID)
		}

		if err := i.pbs.ProcessPBs(ctx, userID, chartIDs); err != nil {
			return nil, err
		}

		deltas, err := i.updateStatsFor(ctx, sess, userID, resolver)
		if err != nil {
			return nil, err
		}
		if userID == sess.userID {
			submitterDeltas = deltas
		}
	}

	// A batch can carry class data without any new scores (a dan rank
	// report, say); the submitter's stats still need the update.
	if _, touched := sess.touched[sess.userID]; !touched && resolver != nil {
		deltas, err := i.updateStatsFor(ctx, sess, sess.userID, resolver)
		if err != nil {
			return nil, err
		}
		submitterDeltas = deltas
	}

	return submitterDeltas, nil
}

func (i *Importer) updateStatsFor(ctx context.Context, sess *session, userID int, resolver converter.ClassResolver) ([]domain.ClassDelta, error) {
	var provided map[string]int
	if resolver != nil && userID == sess.userID {
		classes, err := resolver(ctx, sess.bctx.Game, sess.bctx.Playtype, userID, nil)
		if err != nil {
			// Resolver data is supplementary; stats still update.
			i.logger.Warn().Err(err).Int("user_id", userID).Msg("class resolver failed")
		} else {
			provided = classes
		}
	}

	return i.stats.UpdateStats(ctx, userID, sess.bctx.Game, sess.bctx.Playtype, provided)
}

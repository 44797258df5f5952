package ugs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/gameconfig"
	"rhythm-tracker/internal/repository"
	"rhythm-tracker/internal/webhook"
)

type Service struct {
	ugs     *repository.UGSRepository
	pbs     *repository.PBRepository
	classes *repository.ClassAchievementRepository
	emitter webhook.Emitter
	bestN   int
	logger  zerolog.Logger
}

func NewService(
	ugsRepo *repository.UGSRepository,
	pbRepo *repository.PBRepository,
	classRepo *repository.ClassAchievementRepository,
	emitter webhook.Emitter,
	bestN int,
	log zerolog.Logger,
) *Service {
	return &Service{
		ugs:     ugsRepo,
		pbs:     pbRepo,
		classes: classRepo,
		emitter: emitter,
		bestN:   bestN,
		logger:  log,
	}
}

// UpdateStats recomputes a user's profile stats for one
// (game, playtype): best-N ratings over their PBs, rating-derived
// classes merged with any externally provided ones, then the monotonic
// class ratchet against the stored document. Returns the class deltas
// that passed the ratchet.
//
// providedClasses carries externally reported sets (dan ranks etc)
// from the import's class resolver; pass nil when there are none.
func (s *Service) UpdateStats(ctx context.Context, userID int, game domain.Game, playtype domain.Playtype, providedClasses map[string]int) ([]domain.ClassDelta, error) {
	gptConfig := gameconfig.Get(game, playtype)
	if gptConfig == nil {
		return nil, fmt.Errorf("unsupported game/playtype %s:%s", game, playtype)
	}

	pbs, err := s.pbs.GetUserGamePBs(ctx, userID, game, playtype)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pbs for stats: %w", err)
	}

	ratings := calculateRatings(gptConfig, pbs, s.bestN)

	var derived map[string]int
	if deriver := classDerivers[gamePTKey{game, playtype}]; deriver != nil {
		derived = deriveSafely(deriver, ratings, s.logger)
	}
	newClasses := mergeClasses(derived, providedClasses)

	existing, err := s.ugs.Get(ctx, userID, game, playtype)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch existing stats: %w", err)
	}

	var oldClasses map[string]int
	if existing != nil {
		oldClasses = existing.Classes
	}

	deltas, finalClasses := ratchetClasses(game, playtype, oldClasses, newClasses)

	doc := &domain.UserGameStats{
		UserID:   userID,
		Game:     game,
		Playtype: playtype,
		Ratings:  ratings,
		Classes:  finalClasses,
	}

	if existing == nil {
		if err := s.ugs.EnsureGameSettings(ctx, userID, game, playtype); err != nil {
			return nil, err
		}
	}

	if err := s.ugs.Upsert(ctx, doc); err != nil {
		return nil, err
	}

	if len(deltas) > 0 {
		achievements := make([]domain.ClassAchievement, 0, len(deltas))
		now := time.Now()
		for _, d := range deltas {
			achievements = append(achievements, domain.ClassAchievement{
				UserID:       userID,
				Game:         game,
				Playtype:     playtype,
				ClassSet:     d.Set,
				OldValue:     d.Old,
				NewValue:     d.New,
				TimeAchieved: now,
			})
		}
		if err := s.classes.InsertBatch(ctx, achievements); err != nil {
			return nil, fmt.Errorf("failed to record class achievements: %w", err)
		}

		s.emitter.EmitClassAchievements(userID, deltas)
	}

	return deltas, nil
}

// ratchetClasses compares new class values against stored ones. Only a
// strictly greater value (or a brand new set) produces a delta and an
// update; a recompute can never lower a stored class.
func ratchetClasses(game domain.Game, playtype domain.Playtype, old, updated map[string]int) ([]domain.ClassDelta, map[string]int) {
	final := make(map[string]int, len(old)+len(updated))
	for k, v := range old {
		final[k] = v
	}

	var deltas []domain.ClassDelta
	for set, newVal := range updated {
		oldVal, had := old[set]
		if had && newVal <= oldVal {
			continue
		}

		final[set] = newVal
		delta := domain.ClassDelta{
			Game:     game,
			Playtype: playtype,
			Set:      set,
			New:      newVal,
		}
		if had {
			prev := oldVal
			delta.Old = &prev
		}
		deltas = append(deltas, delta)
	}

	return deltas, final
}

// deriveSafely isolates a panicking class deriver; a broken derivation
// loses that class set for this recompute, not the whole stats update.
func deriveSafely(deriver classDeriver, ratings map[string]*float64, log zerolog.Logger) (classes map[string]int) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("class deriver panicked")
			classes = nil
		}
	}()
	return deriver(ratings)
}

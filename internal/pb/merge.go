package pb

import (
	"maps"

	"rhythm-tracker/internal/domain"
)

// mergeFn lets a game pull extra fields into a PB beyond the standard
// score/lamp composition. The doc has already been composed from the
// score and lamp PBs; the fn may read any of the user's scores on the
// chart and should record additional sources in ComposedFrom.Other.
type mergeFn func(doc *domain.PersonalBest, scores []domain.Score)

var gameMergeFns = map[domain.Game]mergeFn{
	domain.GameIIDX: mergeIIDXBestBP,
}

// mergeIIDXBestBP folds the user's lowest breakpoint count into the
// PB. BP is a "lower is better" stat, so neither the score PB nor the
// lamp PB necessarily holds it.
func mergeIIDXBestBP(doc *domain.PersonalBest, scores []domain.Score) {
	var best *domain.Score
	for i := range scores {
		bp, ok := scores[i].ScoreData.HitMeta["bp"]
		if !ok {
			continue
		}
		if best == nil || bp < best.ScoreData.HitMeta["bp"] {
			best = &scores[i]
		}
	}

	if best == nil {
		return
	}

	if doc.ScoreData.HitMeta == nil {
		doc.ScoreData.HitMeta = domain.HitMeta{}
	} else {
		doc.ScoreData.HitMeta = maps.Clone(doc.ScoreData.HitMeta)
	}
	doc.ScoreData.HitMeta["bp"] = best.ScoreData.HitMeta["bp"]

	if best.ScoreID != doc.ComposedFrom.ScorePB && best.ScoreID != doc.ComposedFrom.LampPB {
		doc.ComposedFrom.Other = append(doc.ComposedFrom.Other, domain.OtherPBRef{
			Name:    "Best BP",
			ScoreID: best.ScoreID,
		})
	}
}

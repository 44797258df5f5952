// Package scoreid derives the stable content-addressed identifier used
// to deduplicate score submissions.
package scoreid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"rhythm-tracker/internal/domain"
)

// Prefix distinguishes score identifiers from other identifier kinds
// on sight.
const Prefix = "R"

// CreateScoreID hashes exactly the fields that make a score a distinct
// competitive result: userID, chartID, lamp, grade, score and percent.
// Timestamps, comments and metadata are deliberately excluded, so a
// resubmission of the same result with a different timestamp collides
// with the original.
func CreateScoreID(userID int, score *domain.DryScore, chartID string) string {
	idString := createScoreIDString(userID, score, chartID)

	sum := sha256.Sum256([]byte(idString))

	return Prefix + hex.EncodeToString(sum[:])
}

func createScoreIDString(userID int, score *domain.DryScore, chartID string) string {
	sd := score.ScoreData

	// Percent is formatted with full precision so distinguishable
	// results never share an ID.
	return fmt.Sprintf("%d|%s|%s|%s|%d|%s",
		userID,
		chartID,
		sd.Lamp,
		sd.Grade,
		sd.Score,
		strconv.FormatFloat(sd.Percent, 'g', -1, 64),
	)
}

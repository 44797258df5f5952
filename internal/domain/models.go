package domain

import (
	"time"
)

type Game string

const (
	GameIIDX     Game = "iidx"
	GameSDVX     Game = "sdvx"
	GameUSC      Game = "usc"
	GameChunithm Game = "chunithm"
	GameGitadora Game = "gitadora"
)

type Playtype string

const (
	PlaytypeSP         Playtype = "SP"
	PlaytypeDP         Playtype = "DP"
	PlaytypeSingle     Playtype = "Single"
	PlaytypeKeyboard   Playtype = "Keyboard"
	PlaytypeController Playtype = "Controller"
	PlaytypeGita       Playtype = "Gita"
	PlaytypeDora       Playtype = "Dora"
)

// Judgements holds per-window hit counts. Keys are game specific
// ("pgreat", "critical", "miss", ...).
type Judgements map[string]int

// HitMeta is the optional hit metadata blob attached to a score
// (gauge, bp, maxCombo, ...).
type HitMeta map[string]float64

type ScoreData struct {
	Score      int        `json:"score"`
	Percent    float64    `json:"percent"`
	Grade      string     `json:"grade"`
	GradeIndex int        `json:"gradeIndex"`
	Lamp       string     `json:"lamp"`
	LampIndex  int        `json:"lampIndex"`
	Judgements Judgements `json:"judgements,omitempty"`
	HitMeta    HitMeta    `json:"hitMeta,omitempty"`
}

// DryScore is a converted score before identity hashing and
// calculated-data enrichment. Converters produce these; only the
// importer turns them into full Score documents.
type DryScore struct {
	Game         Game
	Service      string
	ImportType   string
	Comment      string
	TimeAchieved int64 // unix millis, 0 when unknown
	ScoreData    ScoreData
}

// Score is immutable once created, outside of the corrective
// score-mutation path which must reconcile every denormalized shadow.
type Score struct {
	ScoreID        string
	UserID         int
	ChartID        string
	SongID         int
	Game           Game
	Playtype       Playtype
	ScoreData      ScoreData
	CalculatedData map[string]float64
	ImportType     string
	Service        string
	Comment        string
	TimeAchieved   int64 // unix millis, 0 when unknown
	TimeAdded      time.Time
}

type Song struct {
	ID      int
	Game    Game
	Title   string
	Artist  string
	Version string
}

type Chart struct {
	ChartID    string
	SongID     int
	Game       Game
	Playtype   Playtype
	Difficulty string
	Level      string
	LevelNum   float64
	Notecount  int
	HashSHA1   string
	IsPrimary  bool
}

type OtherPBRef struct {
	Name    string `json:"name"`
	ScoreID string `json:"scoreID"`
}

// ComposedFrom records which underlying score contributed which
// sub-metric to a personal best.
type ComposedFrom struct {
	ScorePB string       `json:"scorePB"`
	LampPB  string       `json:"lampPB"`
	Other   []OtherPBRef `json:"other,omitempty"`
}

type RankingData struct {
	Rank  int `json:"rank"`
	OutOf int `json:"outOf"`
}

// PersonalBest is synthesized from a user's scores on one chart. It is
// never submitted directly and is always safe to recompute from scores.
//
// RankingData is nil between the PB upsert and the chart ranking
// refresh. Readers must treat that as "ranking not yet computed", not
// as an error.
type PersonalBest struct {
	UserID         int
	ChartID        string
	SongID         int
	Game           Game
	Playtype       Playtype
	IsPrimary      bool
	Highlight      bool
	TimeAchieved   int64
	ScoreData      ScoreData
	CalculatedData map[string]float64
	ComposedFrom   ComposedFrom
	RankingData    *RankingData
}

// UserGameStats is the per (user, game, playtype) aggregate profile.
// Ratings map every configured profile algorithm to its value; a nil
// value means not enough scores exist to compute it. Classes are
// monotonic: a recompute never lowers a stored class.
type UserGameStats struct {
	UserID   int
	Game     Game
	Playtype Playtype
	Ratings  map[string]*float64
	Classes  map[string]int
}

type ClassDelta struct {
	Game     Game     `json:"game"`
	Playtype Playtype `json:"playtype"`
	Set      string   `json:"set"`
	Old      *int     `json:"old"`
	New      int      `json:"new"`
}

// ClassAchievement is an append-only audit row written whenever a
// class delta passes the monotonic ratchet.
type ClassAchievement struct {
	UserID       int
	Game         Game
	Playtype     Playtype
	ClassSet     string
	OldValue     *int
	NewValue     int
	TimeAchieved time.Time
}

// OrphanChart is a chart referenced by submitted scores but not yet
// promoted into the canonical catalog. UserIDs tracks the distinct
// submitters; promotion happens when len(UserIDs) reaches the
// configured threshold.
type OrphanChart struct {
	OrphanID    string
	Fingerprint string
	Game        Game
	Playtype    Playtype
	Name        string
	Chart       Chart
	Song        Song
	UserIDs     []int
	Claimed     bool
	TimeAdded   time.Time
}

// OrphanScore queues the raw converter input of a score whose chart is
// still orphaned, so it can be replayed through the normal pipeline
// once the chart is promoted.
type OrphanScore struct {
	OrphanID     string
	Fingerprint  string
	UserID       int
	Game         Game
	ImportType   string
	Data         []byte
	Context      []byte
	TimeInserted time.Time
}

type ImportErrType string

const (
	ImportErrInvalidScore ImportErrType = "InvalidScore"
	ImportErrDataNotFound ImportErrType = "DataNotFound"
	ImportErrInternal     ImportErrType = "Internal"
)

type ImportError struct {
	Type    ImportErrType `json:"type"`
	Message string        `json:"message"`
	Record  string        `json:"record"`
}

// ImportDocument summarizes one import run. ScoreIDs only contains
// newly inserted scores; duplicates are skipped silently and are not
// errors.
type ImportDocument struct {
	ImportID     string
	UserID       int
	UserIntent   bool
	ImportType   string
	Game         Game
	ScoreIDs     []string
	Errors       []ImportError
	ClassDeltas  []ClassDelta
	TimeStarted  time.Time
	TimeFinished time.Time
}

// GameSettings is created alongside a user's first UGS document for a
// (game, playtype).
type GameSettings struct {
	UserID      int
	Game        Game
	Playtype    Playtype
	Preferences map[string]string
}

// BPIData is per-chart calibration reference data for the IIDX BPI
// rating function.
type BPIData struct {
	ChartID string
	KAVG    float64
	WR      float64
	Coef    float64
}

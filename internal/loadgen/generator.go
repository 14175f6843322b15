package loadgen

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/learnmatch/internal/domain/extract"
	"github.com/okian/learnmatch/internal/domain/features"
	"github.com/okian/learnmatch/internal/domain/types"
)

const (
	xpPerLesson   = 100
	maxDifficulty = 10
	maxSessions   = 30
)

type span struct{ lo, hi float64 }

// archetype bounds the raw progress of one category of learner.
type archetype struct {
	category   features.Category
	accuracy   span
	lessons    span
	completion span
	difficulty span
	minutes    span // per lesson
	streak     span // days
	gapHours   float64
	jitter     float64 // +/- hours around gapHours
}

var archetypes = []archetype{
	{
		category: features.Beginner,
		accuracy: span{0.40, 0.60}, lessons: span{3, 10}, completion: span{0.10, 0.30},
		difficulty: span{0.20, 0.40}, minutes: span{20, 30}, streak: span{0, 5},
		gapHours: 72, jitter: 48,
	},
	{
		category: features.Intermediate,
		accuracy: span{0.60, 0.75}, lessons: span{10, 30}, completion: span{0.30, 0.55},
		difficulty: span{0.40, 0.60}, minutes: span{15, 22}, streak: span{5, 12},
		gapHours: 48, jitter: 24,
	},
	{
		category: features.Advanced,
		accuracy: span{0.75, 0.88}, lessons: span{30, 60}, completion: span{0.55, 0.80},
		difficulty: span{0.60, 0.80}, minutes: span{10, 16}, streak: span{12, 20},
		gapHours: 24, jitter: 8,
	},
	{
		category: features.Expert,
		accuracy: span{0.88, 0.98}, lessons: span{60, 100}, completion: span{0.80, 1.00},
		difficulty: span{0.80, 0.95}, minutes: span{6, 11}, streak: span{20, 40},
		gapHours: 24, jitter: 2,
	},
}

// Learner is one synthetic submission and the category it was drawn from.
type Learner struct {
	Request types.ProgressRequest
	Label   features.Category
}

// Generator produces reproducible synthetic learners.
type Generator struct {
	rng *rand.Rand
	now time.Time
}

// NewGenerator returns a generator whose output depends only on seed and now.
func NewGenerator(seed uint64, now time.Time) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), now: now.UTC()}
}

// Generate returns n learners with consecutive user ids starting at
// firstUserID, cycling through the archetypes so every category is
// represented equally. Event ids are random uuids.
func (g *Generator) Generate(n int, firstUserID int64) []Learner {
	out := make([]Learner, n)
	for i := range n {
		a := archetypes[i%len(archetypes)]
		out[i] = Learner{
			Request: g.request(a, firstUserID+int64(i)),
			Label:   a.category,
		}
	}
	return out
}

func (g *Generator) draw(s span) float64 {
	return s.lo + g.rng.Float64()*(s.hi-s.lo)
}

func (g *Generator) request(a archetype, userID int64) types.ProgressRequest {
	lessons := int(math.Round(g.draw(a.lessons)))
	completion := g.draw(a.completion)
	total := lessons
	if completion > 0 {
		total = int(math.Ceil(float64(lessons) / completion))
	}
	possible := float64(lessons * xpPerLesson)

	return types.ProgressRequest{
		EventID:           uuid.NewString(),
		UserID:            userID,
		Category:          a.category.String(),
		XPEarned:          math.Round(g.draw(a.accuracy) * possible),
		XPPossible:        possible,
		LessonsCompleted:  lessons,
		LessonsTotal:      total,
		TotalMinutes:      math.Round(float64(lessons) * g.draw(a.minutes)),
		AverageDifficulty: g.draw(a.difficulty) * maxDifficulty,
		MaxDifficulty:     maxDifficulty,
		StreakDays:        int(g.draw(a.streak)),
		AccessTimes:       g.accessTimes(a, min(lessons, maxSessions)),
		TS:                g.now,
	}
}

// accessTimes walks backwards from now in gaps of gapHours +/- jitter.
func (g *Generator) accessTimes(a archetype, sessions int) []time.Time {
	ts := make([]time.Time, sessions)
	t := g.now
	for i := sessions - 1; i >= 0; i-- {
		ts[i] = t
		gap := a.gapHours + (g.rng.Float64()*2-1)*a.jitter
		t = t.Add(-time.Duration(math.Max(1, gap) * float64(time.Hour)))
	}
	return ts
}

// Profiles runs each learner through the same extractor the service uses,
// giving the labelled profiles a seed file should contain.
func Profiles(ctx context.Context, learners []Learner, now time.Time) ([]types.Profile, error) {
	ex := extract.NewProgressExtractor()
	out := make([]types.Profile, 0, len(learners))
	for i := range learners {
		v, err := ex.Extract(ctx, learners[i].Request.ToEvent(now))
		if err != nil {
			return nil, fmt.Errorf("learner %d: %w", learners[i].Request.UserID, err)
		}
		out = append(out, types.ProfileFromVector(v))
	}
	return out, nil
}

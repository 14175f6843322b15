package types_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	features "github.com/okian/learnmatch/internal/domain/features"
	types "github.com/okian/learnmatch/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func validRequest() types.ProgressRequest {
	return types.ProgressRequest{
		EventID:          "e-1",
		UserID:           42,
		Category:         "intermediate",
		XPEarned:         300,
		XPPossible:       400,
		LessonsCompleted: 6,
		LessonsTotal:     10,
		TotalMinutes:     90,
		MaxDifficulty:    5,
	}
}

func TestProgressRequest(t *testing.T) {
	Convey("Given a progress request", t, func() {
		req := validRequest()

		Convey("When it is well formed", func() {
			Convey("Then it validates", func() {
				So(req.Validate(), ShouldBeNil)
			})
		})

		Convey("When the user id is missing", func() {
			req.UserID = 0
			So(errors.Is(req.Validate(), types.ErrInvalidRequest), ShouldBeTrue)
		})

		Convey("When a count is negative", func() {
			req.LessonsCompleted = -1
			So(errors.Is(req.Validate(), types.ErrInvalidRequest), ShouldBeTrue)
		})

		Convey("When a number is not finite", func() {
			req.TotalMinutes = math.NaN()
			So(errors.Is(req.Validate(), types.ErrInvalidRequest), ShouldBeTrue)
		})

		Convey("When the category is unknown", func() {
			req.Category = "wizard"
			err := req.Validate()
			So(errors.Is(err, types.ErrInvalidRequest), ShouldBeTrue)
			So(errors.Is(err, features.ErrUnknownCategory), ShouldBeTrue)
		})

		Convey("When the category is empty", func() {
			req.Category = ""
			So(req.Validate(), ShouldBeNil)
		})

		Convey("When converted to an event without a timestamp", func() {
			now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
			ev := req.ToEvent(now)

			Convey("Then fields carry over and ts defaults to now", func() {
				So(ev.EventID, ShouldEqual, "e-1")
				So(ev.UserID, ShouldEqual, 42)
				So(ev.XPPossible, ShouldEqual, 400.0)
				So(ev.TS, ShouldEqual, now)
			})
		})

		Convey("When decoded from JSON with RFC3339 timestamps", func() {
			body := `{"user_id":7,"xp_earned":1,"xp_possible":2,"access_times":["2025-01-01T08:00:00Z","2025-01-02T08:00:00Z"],"ts":"2025-01-03T00:00:00Z"}`
			var decoded types.ProgressRequest
			err := json.Unmarshal([]byte(body), &decoded)

			Convey("Then times parse", func() {
				So(err, ShouldBeNil)
				So(decoded.AccessTimes, ShouldHaveLength, 2)
				So(decoded.TS.Day(), ShouldEqual, 3)
				So(decoded.Validate(), ShouldBeNil)
			})
		})
	})
}

func TestProfile(t *testing.T) {
	Convey("Given a seed profile", t, func() {
		p := types.Profile{UserID: 3, Category: "Advanced", AccuracyRate: 0.9, TimePerLesson: 12}

		Convey("When converted to a vector", func() {
			v, err := p.ToVector()

			Convey("Then the label is parsed", func() {
				So(err, ShouldBeNil)
				So(v.Category, ShouldEqual, features.Advanced)
				So(v.AccuracyRate, ShouldEqual, 0.9)
			})

			Convey("Then ProfileFromVector restores it with a canonical label", func() {
				back := types.ProfileFromVector(v)
				So(back.Category, ShouldEqual, "advanced")
				So(back.TimePerLesson, ShouldEqual, 12.0)
			})
		})

		Convey("When the label is not a category", func() {
			p.Category = "guru"
			_, err := p.ToVector()
			So(errors.Is(err, features.ErrUnknownCategory), ShouldBeTrue)
		})

		Convey("When the user id is not positive", func() {
			p.UserID = 0
			_, err := p.ToVector()
			So(errors.Is(err, features.ErrInvalidUserID), ShouldBeTrue)
		})

		Convey("When mapped for encoding", func() {
			m := p.Map()
			So(m["user_id"], ShouldEqual, int64(3))
			So(m["category"], ShouldEqual, "Advanced")
			So(m, ShouldHaveLength, features.NumFeatures+2)
		})
	})
}

func TestProfileSetRequest(t *testing.T) {
	Convey("Given a profile set body", t, func() {
		Convey("When categories are labels", func() {
			var req types.ProfileSetRequest
			err := json.Unmarshal([]byte(`{"profiles":[{"user_id":1,"category":"expert","accuracy_rate":1}]}`), &req)

			So(err, ShouldBeNil)
			So(req.Profiles, ShouldHaveLength, 1)
			So(req.Profiles[0].Category, ShouldEqual, features.Expert)
		})

		Convey("When a category label is invalid", func() {
			var req types.ProfileSetRequest
			err := json.Unmarshal([]byte(`{"profiles":[{"user_id":1,"category":"nope"}]}`), &req)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestResponses(t *testing.T) {
	Convey("Given a classification response", t, func() {
		b, err := json.Marshal(types.ClassificationResponse{UserID: 9, Category: features.Beginner})

		Convey("Then the category is encoded as its label", func() {
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `{"user_id":9,"category":"beginner"}`)
		})
	})
}

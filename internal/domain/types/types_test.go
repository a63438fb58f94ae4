package types_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/matchlearn/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRankingJSON(t *testing.T) {
	Convey("Given a ranking with one result and one skip", t, func() {
		r := types.Ranking{
			Domain:       "default",
			RequesterID:  "req",
			ModelVersion: 3,
			Results: []types.RankedCandidate{{
				CandidateID:   "A",
				Score:         0.64,
				Rank:          1,
				Contributions: map[string]float64{"expertise": 0.25},
				Confidence:    0.7,
			}},
			Skipped: []types.Skipped{{CandidateID: "B", Reason: types.SkipProfileNotFound}},
		}

		b, err := json.Marshal(r)
		So(err, ShouldBeNil)

		Convey("Then it uses snake_case field names", func() {
			s := string(b)
			So(s, ShouldContainSubstring, `"model_version":3`)
			So(s, ShouldContainSubstring, `"candidate_id":"A"`)
			So(s, ShouldContainSubstring, `"reason":"profile_not_found"`)
		})

		Convey("Then empty optional fields are omitted", func() {
			So(string(b), ShouldNotContainSubstring, "rationale")
			So(string(b), ShouldNotContainSubstring, "scoring_event_id")
		})
	})
}

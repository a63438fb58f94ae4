package insight

import (
	"context"
	"fmt"
	"strings"
)

// strongShare is the contribution above which a factor counts as a driver.
const strongShare = 0.01

// Template builds rationales from contributions alone. It is deterministic
// and never fails.
type Template struct{}

// NewTemplate returns a Template generator.
func NewTemplate() *Template { return &Template{} }

// Name implements Generator.
func (t *Template) Name() string { return ProviderTemplate }

// Explain implements Generator.
func (t *Template) Explain(ctx context.Context, req Request) (string, error) {
	ranked := req.Contributions.Ranked()

	var drivers []string
	for _, fs := range ranked {
		if fs.Value < strongShare || len(drivers) == 2 {
			break
		}
		drivers = append(drivers, fmt.Sprintf("%s (+%.2f)", fs.Factor, fs.Value))
	}
	weakest := ranked[len(ranked)-1]

	var b strings.Builder
	fmt.Fprintf(&b, "%s ranked #%d with score %.2f", displayName(req.Candidate), req.Rank, req.Score)
	if len(drivers) > 0 {
		fmt.Fprintf(&b, ", driven by %s", strings.Join(drivers, " and "))
	}
	fmt.Fprintf(&b, "; weakest factor %s (+%.2f).", weakest.Factor, weakest.Value)
	if req.Provisional {
		fmt.Fprintf(&b, " Confidence %.2f is provisional.", req.Confidence)
	} else {
		fmt.Fprintf(&b, " Confidence %.2f.", req.Confidence)
	}
	return b.String(), nil
}

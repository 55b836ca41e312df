package engine

import (
	"math"
	"sort"
)

const tieEpsilon = 1e-9

// rankedOption is an option with its aggregated score
type rankedOption struct {
	option   Option
	total    float64
	raw      float64
	excluded bool
	vetoedBy []string
	reasons  []string
}

// aggregate combines member scores into one multiplier-weighted score per option
func aggregate(m *ScoreMatrix) []rankedOption {
	ranked := make([]rankedOption, 0, len(m.Options))
	for _, o := range m.Options {
		r := rankedOption{option: o}
		var weighted, weights, plain float64
		for _, us := range m.ForOption(o.ID) {
			if us.Vetoed {
				r.excluded = true
				r.vetoedBy = append(r.vetoedBy, us.UserID)
				r.reasons = append(r.reasons, us.VetoReasons...)
			}
			weighted += us.Score * us.InfluenceMultiplier
			weights += us.InfluenceMultiplier
			plain += us.Score
		}
		n := float64(len(m.Users))
		if n > 0 {
			r.raw = plain / n
		}
		if weights > 0 {
			r.total = clamp01(weighted / weights)
		} else {
			r.total = r.raw
		}
		r.reasons = NormalizeTokens(r.reasons)
		ranked = append(ranked, r)
	}
	sortRanked(ranked)
	return ranked
}

// sortRanked orders by score, then rating, then ID
func sortRanked(ranked []rankedOption) {
	sort.SliceStable(ranked, func(i, j int) bool {
		return better(ranked[i].option, ranked[i].total, ranked[j].option, ranked[j].total)
	})
}

// better reports whether option a with score sa ranks ahead of b with score sb
func better(a Option, sa float64, b Option, sb float64) bool {
	if math.Abs(sa-sb) > tieEpsilon {
		return sa > sb
	}
	ra, rb := ratingOf(a), ratingOf(b)
	if ra != rb {
		return ra > rb
	}
	return a.ID < b.ID
}

func ratingOf(o Option) float64 {
	if o.Rating == nil {
		return -1
	}
	return *o.Rating
}

// selection is the outcome of choosing among ranked options
type selection struct {
	winner       rankedOption
	alternatives []Alternative
	rankings     []OptionRanking
	vetoed       []VetoedOption
}

// selectOption picks the best non-excluded option and describes the runners-up
func selectOption(ranked []rankedOption) (selection, error) {
	var sel selection
	found := false
	for _, r := range ranked {
		sel.rankings = append(sel.rankings, OptionRanking{OptionID: r.option.ID, TotalScore: r.total, Excluded: r.excluded})
		if r.excluded {
			sel.vetoed = append(sel.vetoed, VetoedOption{OptionID: r.option.ID, VetoedBy: r.vetoedBy, Reasons: r.reasons})
			continue
		}
		if !found {
			sel.winner = r
			found = true
			continue
		}
		sel.alternatives = append(sel.alternatives, Alternative{
			Option: r.option,
			Score:  r.total,
		})
	}
	if !found {
		return sel, ErrNoViableOption
	}
	for i := range sel.alternatives {
		sel.alternatives[i].Why = ExplainAlternative(sel.winner.total, sel.alternatives[i].Score)
	}
	return sel, nil
}

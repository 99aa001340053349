package matching

import (
	"github.com/Ramsey-B/fern/pkg/models"
)

// Rule names
const (
	RuleExact      = "exact_match"
	RulePartialDOB = "partial_match_with_dob"
	RuleFullName   = "full_name_match"
	RuleFuzzyName  = "fuzzy_name_match"
)

// FuzzyThreshold is the lowest averaged name similarity the fuzzy rule accepts
const FuzzyThreshold = 85.0

// Rule is one matching strategy. Rules are stateless.
type Rule interface {
	Name() string
	Confidence() float64
	Status() models.MatchStatus
	// Match returns the candidate this rule selects, if any.
	Match(subject Subject, candidates []models.Person) (*models.Person, bool)
}

// DefaultRules returns the rule chain in priority order.
func DefaultRules(scorer *Scorer) []Rule {
	return []Rule{
		ExactRule{},
		PartialDOBRule{},
		FullNameRule{},
		FuzzyNameRule{scorer: scorer, threshold: FuzzyThreshold},
	}
}

func sameName(s Subject, p *models.Person) bool {
	return p.LastNameNormalized == s.LastName && p.FirstNameNormalized == s.FirstName
}

func first(candidates []models.Person, pred func(p *models.Person) bool) (*models.Person, bool) {
	for i := range candidates {
		if pred(&candidates[i]) {
			return &candidates[i], true
		}
	}
	return nil, false
}

// ExactRule: last, first, middle and birthday all equal. Two missing
// birthdays are equal.
type ExactRule struct{}

func (ExactRule) Name() string               { return RuleExact }
func (ExactRule) Confidence() float64        { return 100 }
func (ExactRule) Status() models.MatchStatus { return models.MatchStatusMatched }

func (ExactRule) Match(s Subject, candidates []models.Person) (*models.Person, bool) {
	return first(candidates, func(p *models.Person) bool {
		return sameName(s, p) &&
			p.MiddleNameNormalized == s.MiddleName &&
			p.BirthdayKey() == s.Birthday
	})
}

// PartialDOBRule: last, first and birthday equal. Needs an incoming birthday.
type PartialDOBRule struct{}

func (PartialDOBRule) Name() string               { return RulePartialDOB }
func (PartialDOBRule) Confidence() float64        { return 90 }
func (PartialDOBRule) Status() models.MatchStatus { return models.MatchStatusMatched }

func (PartialDOBRule) Match(s Subject, candidates []models.Person) (*models.Person, bool) {
	if s.Birthday == "" {
		return nil, false
	}
	return first(candidates, func(p *models.Person) bool {
		return sameName(s, p) && p.BirthdayKey() == s.Birthday
	})
}

// FullNameRule: last, first and middle equal, birthday ignored.
type FullNameRule struct{}

func (FullNameRule) Name() string               { return RuleFullName }
func (FullNameRule) Confidence() float64        { return 80 }
func (FullNameRule) Status() models.MatchStatus { return models.MatchStatusPossibleDuplicate }

func (FullNameRule) Match(s Subject, candidates []models.Person) (*models.Person, bool) {
	return first(candidates, func(p *models.Person) bool {
		return sameName(s, p) && p.MiddleNameNormalized == s.MiddleName
	})
}

// FuzzyNameRule picks the candidate whose averaged last and first name
// similarity is highest, provided it reaches the threshold. Ties keep the
// earlier candidate.
type FuzzyNameRule struct {
	scorer    *Scorer
	threshold float64
}

func NewFuzzyNameRule(scorer *Scorer, threshold float64) FuzzyNameRule {
	return FuzzyNameRule{scorer: scorer, threshold: threshold}
}

func (FuzzyNameRule) Name() string               { return RuleFuzzyName }
func (FuzzyNameRule) Confidence() float64        { return 70 }
func (FuzzyNameRule) Status() models.MatchStatus { return models.MatchStatusPossibleDuplicate }

func (r FuzzyNameRule) Match(s Subject, candidates []models.Person) (*models.Person, bool) {
	var best *models.Person
	bestScore := 0.0

	for i := range candidates {
		p := &candidates[i]
		avg := (r.scorer.SimilarText(s.LastName, p.LastNameNormalized) +
			r.scorer.SimilarText(s.FirstName, p.FirstNameNormalized)) / 2
		if avg >= r.threshold && avg > bestScore {
			best, bestScore = p, avg
		}
	}

	return best, best != nil
}

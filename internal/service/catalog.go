package service

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"paygate/internal/domain"
)

// Catalog is the fixed, ordered onboarding questionnaire.
type Catalog []domain.Question

// DefaultCatalog returns the onboarding questions in the order they are asked.
func DefaultCatalog() Catalog {
	return Catalog{
		{
			ID:       "name",
			Prompt:   "What's your full name?",
			Kind:     domain.InputText,
			Required: true,
			Validate: minLength(2),
		},
		{
			ID:       "email",
			Prompt:   "What's your email address?",
			Kind:     domain.InputText,
			Required: true,
			Validate: func(values []string) error {
				if !validEmail(strings.ToLower(values[0])) {
					return domain.Invalid("email", "must be a valid email address")
				}
				return nil
			},
		},
		{
			ID:     "telegram_username",
			Prompt: "What's your Telegram username? (without @)",
			Kind:   domain.InputText,
		},
		{
			ID:       "current_income",
			Prompt:   "What's your current monthly income range?",
			Kind:     domain.InputSingleChoice,
			Required: true,
			Options:  []string{"£0 - £1,000", "£1,000 - £5,000", "£5,000 - £10,000", "£10,000 - £25,000", "£25,000 - £50,000", "£50,000+"},
		},
		{
			ID:       "income_goal",
			Prompt:   "What's your monthly income goal?",
			Kind:     domain.InputSingleChoice,
			Required: true,
			Options:  []string{"£5,000 - £10,000", "£10,000 - £25,000", "£25,000 - £50,000", "£50,000 - £100,000", "£100,000+"},
		},
		{
			ID:       "business_experience",
			Prompt:   "What's your business experience level?",
			Kind:     domain.InputSingleChoice,
			Required: true,
			Options: []string{
				"Complete beginner",
				"Some experience, no revenue yet",
				"Making some money (under £1k/month)",
				"Consistent revenue (£1k-£10k/month)",
				"Established business (£10k+/month)",
			},
		},
		{
			ID:       "available_capital",
			Prompt:   "How much capital do you have available to invest?",
			Kind:     domain.InputSingleChoice,
			Required: true,
			Options:  []string{"£0 - £500", "£500 - £2,000", "£2,000 - £10,000", "£10,000 - £50,000", "£50,000+"},
		},
		{
			ID:       "current_stage",
			Prompt:   "What stage are you at right now?",
			Kind:     domain.InputSingleChoice,
			Required: true,
			Options: []string{
				"Looking for business ideas",
				"Have an idea, need validation",
				"Validating/testing my concept",
				"Building my first product/service",
				"Have product, need customers",
				"Scaling existing business",
			},
		},
		{
			ID:       "time_commitment",
			Prompt:   "How many hours per week can you dedicate to your business?",
			Kind:     domain.InputSingleChoice,
			Required: true,
			Options: []string{
				"5-10 hours (part-time)",
				"10-20 hours (serious side hustle)",
				"20-40 hours (almost full-time)",
				"40+ hours (full-time commitment)",
			},
		},
		{
			ID:       "biggest_challenge",
			Prompt:   "What's your biggest challenge right now?",
			Kind:     domain.InputSingleChoice,
			Required: true,
			Options: []string{
				"Finding the right business idea",
				"Understanding my target market",
				"Creating a compelling offer",
				"Marketing and lead generation",
				"Converting leads to sales",
				"Scaling and systemizing",
				"Creating content",
			},
		},
		{
			ID:       "skills_expertise",
			Prompt:   "What skills or expertise do you have? (Select all that apply)",
			Kind:     domain.InputMultipleChoice,
			Required: true,
			Options: []string{
				"Marketing/Advertising",
				"Sales",
				"Technical/Programming",
				"Design/Creative",
				"Writing/Content",
				"Consulting/Coaching",
				"Finance/Accounting",
				"Operations/Project Management",
				"Industry-specific knowledge",
				"Other",
			},
		},
		{
			ID:       "urgency_level",
			Prompt:   "How urgent is your need to increase income?",
			Kind:     domain.InputSingleChoice,
			Required: true,
			Options: []string{
				"Not urgent, just exploring",
				"Would be nice within 6-12 months",
				"Important within 3-6 months",
				"Critical within 1-3 months",
				"Extremely urgent (financial pressure)",
			},
		},
	}
}

func minLength(n int) func([]string) error {
	return func(values []string) error {
		if utf8.RuneCountInString(values[0]) < n {
			return domain.Invalid("answer", "must be at least "+strconv.Itoa(n)+" characters")
		}
		return nil
	}
}

// Find looks a question up by id.
func (c Catalog) Find(id string) (domain.Question, bool) {
	for _, q := range c {
		if q.ID == id {
			return q, true
		}
	}
	return domain.Question{}, false
}

// NextUnanswered returns the first question, in catalog order, missing from progress.
func (c Catalog) NextUnanswered(progress domain.Progress) *domain.Question {
	for i := range c {
		if _, ok := progress[c[i].ID]; !ok {
			q := c[i]
			return &q
		}
	}
	return nil
}

// Answered counts catalog questions present in progress.
func (c Catalog) Answered(progress domain.Progress) int {
	n := 0
	for _, q := range c {
		if _, ok := progress[q.ID]; ok {
			n++
		}
	}
	return n
}

// Percent is floor(answered / total * 100).
func (c Catalog) Percent(progress domain.Progress) int {
	if len(c) == 0 {
		return 100
	}
	return c.Answered(progress) * 100 / len(c)
}

// RequiredAnswered reports whether every required question has an entry.
func (c Catalog) RequiredAnswered(progress domain.Progress) bool {
	for _, q := range c {
		if !q.Required {
			continue
		}
		if _, ok := progress[q.ID]; !ok {
			return false
		}
	}
	return true
}

// NormalizeAnswer trims raw values, resolves choice options by 1-based number or
// case-insensitive text and runs the question validator. Validation failures are
// *domain.ValidationError keyed by the question id.
func NormalizeAnswer(q domain.Question, raw []string) ([]string, error) {
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}

	if len(values) == 0 {
		if q.Required {
			return nil, domain.Invalid(q.ID, "an answer is required")
		}
		return []string{}, nil
	}

	switch q.Kind {
	case domain.InputSingleChoice:
		if len(values) != 1 {
			return nil, domain.Invalid(q.ID, "choose exactly one option")
		}
		opt, ok := matchOption(q.Options, values[0])
		if !ok {
			return nil, domain.Invalid(q.ID, "not one of the offered options")
		}
		values = []string{opt}
	case domain.InputMultipleChoice:
		seen := make(map[string]struct{}, len(values))
		picked := make([]string, 0, len(values))
		for _, v := range values {
			opt, ok := matchOption(q.Options, v)
			if !ok {
				return nil, domain.Invalid(q.ID, "\""+v+"\" is not one of the offered options")
			}
			if _, dup := seen[opt]; dup {
				continue
			}
			seen[opt] = struct{}{}
			picked = append(picked, opt)
		}
		values = picked
	default:
		values = []string{strings.Join(values, ", ")}
	}

	if q.Validate != nil {
		if err := q.Validate(values); err != nil {
			if ve, ok := err.(*domain.ValidationError); ok {
				return nil, domain.Invalid(q.ID, ve.Reason)
			}
			return nil, domain.Invalid(q.ID, err.Error())
		}
	}
	return values, nil
}

func matchOption(options []string, v string) (string, bool) {
	if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], true
	}
	for _, opt := range options {
		if strings.EqualFold(opt, v) {
			return opt, true
		}
	}
	return "", false
}

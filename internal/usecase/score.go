// Package usecase contains the agent orchestration services: intent
// routing, the application pipeline, search aggregation, tailoring and
// the background CV parse. Services depend on domain ports only and
// are wired in internal/app.
package usecase

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// Score weights. They sum to 100. Experience may overshoot its weight
// by up to 1.5x, so the summed total is clamped to [0,100].
const (
	weightSkills     = 35.0
	weightExperience = 25.0
	weightEducation  = 15.0
	weightProjects   = 15.0
	weightDensity    = 10.0
)

// experienceCapRatio caps credit for years of experience at 1.5x the
// job's requirement.
const experienceCapRatio = 1.5

// ScoreBreakdown is the deterministic match of a CV against a job.
// Re-scoring the same inputs with the same clock year yields identical
// output.
type ScoreBreakdown struct {
	Skills     float64  `json:"skills"`
	Experience float64  `json:"experience"`
	Education  float64  `json:"education"`
	Projects   float64  `json:"projects"`
	Density    float64  `json:"density"`
	Total      int      `json:"total"`
	Rating     string   `json:"rating"`
	Matched    []string `json:"matched,omitempty"`
	Missing    []string `json:"missing,omitempty"`
}

var requiredYearsRe = regexp.MustCompile(`(\d+)\s*\+?\s*years?`)

// MatchScore computes the weighted CV/job match:
// skills 35, experience 25, education 15, projects 15, keyword density 10.
func MatchScore(cv domain.CVContent, job domain.JobPosting, nowYear int) ScoreBreakdown {
	keywords := JobKeywords(job)
	flat := cv.FlatText()
	skillsText := strings.ToLower(strings.Join(cv.Skills, "\n"))

	var b ScoreBreakdown
	var inSkills, anywhere int
	for _, kw := range keywords {
		if strings.Contains(skillsText, kw) {
			inSkills++
		}
		if strings.Contains(flat, kw) {
			anywhere++
			b.Matched = append(b.Matched, kw)
		} else {
			b.Missing = append(b.Missing, kw)
		}
	}
	if n := len(keywords); n > 0 {
		b.Skills = weightSkills * float64(inSkills) / float64(n)
		b.Density = weightDensity * float64(anywhere) / float64(n)
	}

	b.Experience = experienceScore(cv, job, nowYear)
	b.Education = educationScore(cv, job)
	b.Projects = projectsScore(len(cv.Projects))

	total := int(math.Round(b.Skills + b.Experience + b.Education + b.Projects + b.Density))
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	b.Total = total
	b.Rating = Rating(total)
	return b
}

// Rating maps a score onto its band.
func Rating(score int) string {
	switch {
	case score >= 80:
		return "Excellent"
	case score >= 65:
		return "Good"
	case score >= 50:
		return "Fair"
	default:
		return "Poor"
	}
}

// experienceScore credits the ratio of CV years to required years,
// capped at 1.5x. Overshoot past the weight is deliberate: an
// over-qualified candidate earns bonus credit and the total clamp
// absorbs it. A job that states no requirement gets the plain weight.
func experienceScore(cv domain.CVContent, job domain.JobPosting, nowYear int) float64 {
	required := RequiredYears(job)
	if required == 0 {
		return weightExperience
	}
	ratio := cv.ExperienceYears(nowYear) / float64(required)
	if ratio > experienceCapRatio {
		ratio = experienceCapRatio
	}
	return weightExperience * ratio
}

// RequiredYears extracts the largest "N years" mention from the job
// text; 0 means the posting states no requirement.
func RequiredYears(job domain.JobPosting) int {
	text := strings.ToLower(job.Description + "\n" + strings.Join(job.Requirements, "\n"))
	var most int
	for _, m := range requiredYearsRe.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > most && n < 60 {
			most = n
		}
	}
	return most
}

var degreeWords = []string{"degree", "bachelor", "master", "phd", "bsc", "msc", "b.s.", "m.s."}

// educationScore is binary when the job asks for a degree; otherwise a
// flat partial credit so education never dominates an unrelated match.
func educationScore(cv domain.CVContent, job domain.JobPosting) float64 {
	text := strings.ToLower(job.Description + "\n" + strings.Join(job.Requirements, "\n"))
	required := false
	for _, w := range degreeWords {
		if strings.Contains(text, w) {
			required = true
			break
		}
	}
	has := false
	for _, e := range cv.Education {
		if strings.TrimSpace(e.Degree) != "" {
			has = true
			break
		}
	}
	if required {
		if has {
			return weightEducation
		}
		return 0
	}
	return 10
}

// projectsScore steps 0/5/10/15 for 0/1/2/3+ projects.
func projectsScore(n int) float64 {
	switch {
	case n >= 3:
		return weightProjects
	case n == 2:
		return 10
	case n == 1:
		return 5
	default:
		return 0
	}
}

// ATSScore estimates how an applicant-tracking keyword scan reads the
// CV: keyword coverage dominates, with a small bonus for having the
// sections scanners expect.
func ATSScore(cv domain.CVContent, job domain.JobPosting) int {
	keywords := JobKeywords(job)
	flat := cv.FlatText()
	var hit int
	for _, kw := range keywords {
		if strings.Contains(flat, kw) {
			hit++
		}
	}
	score := 0.0
	if len(keywords) > 0 {
		score = 70 * float64(hit) / float64(len(keywords))
	}
	if strings.TrimSpace(cv.Summary) != "" {
		score += 10
	}
	if len(cv.Skills) > 0 {
		score += 10
	}
	if len(cv.Experience) > 0 {
		score += 10
	}
	total := int(math.Round(score))
	if total > 100 {
		total = 100
	}
	return total
}

// maxKeywords bounds the keyword set so giant postings do not drown
// the skill fractions in filler.
const maxKeywords = 40

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "you": true,
	"your": true, "our": true, "are": true, "will": true, "this": true,
	"that": true, "have": true, "has": true, "can": true, "must": true,
	"should": true, "would": true, "into": true, "from": true, "about": true,
	"their": true, "they": true, "them": true, "were": true, "been": true,
	"being": true, "but": true, "not": true, "all": true, "any": true,
	"per": true, "etc": true, "who": true, "what": true, "when": true,
	"where": true, "how": true, "why": true, "than": true, "then": true,
	"also": true, "more": true, "most": true, "such": true, "other": true,
	"able": true, "well": true, "work": true, "working": true, "works": true,
	"team": true, "teams": true, "role": true, "job": true, "jobs": true,
	"position": true, "company": true, "experience": true, "years": true,
	"year": true, "skills": true, "skill": true, "strong": true,
	"excellent": true, "good": true, "great": true, "plus": true,
	"required": true, "requirements": true, "requirement": true,
	"preferred": true, "qualifications": true, "responsibilities": true,
	"including": true, "include": true, "includes": true, "within": true,
	"across": true, "using": true, "use": true, "used": true, "new": true,
	"out": true, "own": true, "over": true, "under": true, "both": true,
	"each": true, "very": true, "every": true, "like": true, "looking": true,
	"join": true, "day": true, "days": true, "full": true, "time": true,
	"part": true, "remote": true, "hybrid": true, "onsite": true,
	"salary": true, "benefits": true, "offer": true, "opportunity": true,
	"candidates": true, "candidate": true, "ideal": true, "knowledge": true,
	"understanding": true, "familiarity": true, "ability": true,
	"degree": true, "bachelor": true, "master": true, "related": true,
	"field": true, "equivalent": true, "minimum": true, "least": true,
}

var keywordTokenRe = regexp.MustCompile(`[a-z0-9+#.][a-z0-9+#.\-]*`)

// JobKeywords derives the deterministic keyword set scoring runs
// against: lower-cased tokens of the description and requirements,
// stopwords and bare numbers dropped, order of first appearance kept.
func JobKeywords(job domain.JobPosting) []string {
	text := strings.ToLower(job.Title + "\n" + job.Description + "\n" + strings.Join(job.Requirements, "\n"))
	seen := make(map[string]bool)
	var out []string
	for _, tok := range keywordTokenRe.FindAllString(text, -1) {
		tok = strings.Trim(tok, ".-")
		if len(tok) < 2 || stopwords[tok] || seen[tok] {
			continue
		}
		if _, err := strconv.Atoi(tok); err == nil {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// TopMissing returns up to n missing keywords sorted alphabetically,
// for stable user-facing analysis output.
func TopMissing(b ScoreBreakdown, n int) []string {
	missing := append([]string(nil), b.Missing...)
	sort.Strings(missing)
	if len(missing) > n {
		missing = missing[:n]
	}
	return missing
}

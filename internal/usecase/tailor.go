package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	aipkg "github.com/fairyhunter13/ai-job-agent/internal/adapter/ai"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// TailorService rewrites a parsed CV for one job. The LLM proposes
// edits; the merge, the fabrication cap and the scores are computed
// here, so the result is byte-identical for an identical LLM response.
type TailorService struct {
	LLM     domain.LLMClient
	cleaner *aipkg.ResponseCleaner
}

// NewTailorService wires the tailor over the router.
func NewTailorService(llm domain.LLMClient) *TailorService {
	return &TailorService{LLM: llm, cleaner: aipkg.NewResponseCleaner()}
}

const tailorSystemPrompt = `You are an expert CV writer and ATS optimisation specialist. Rewrite parts of the candidate's CV so it targets the given job, without inventing qualifications the candidate does not have.

Respond with ONLY valid JSON in this exact shape:
{
  "cv_sections": [
    {"section": "summary|skills|experience|education|projects|certifications", "tag": "modified", "original": "exact text being replaced", "text": "replacement text"}
  ],
  "non_cv_sections": [
    {"section": "...", "tag": "new", "text": "added text", "entry": {"company": "...", "title": "...", "start_date": "...", "end_date": "...", "bullets": ["..."]}}
  ],
  "skills_to_remove": ["skill the job makes irrelevant"],
  "cover_letter": "a short cover letter addressed to the company"
}

Rules:
1. cv_sections edits fields the CV already has; non_cv_sections adds to fields that are absent or empty. Never put the same change in both.
2. Every "modified" entry must quote the original text exactly.
3. The "entry" object is only for new experience rows.
4. Keep the candidate's voice; strengthen verbs; weave in the job's keywords where truthful.

CRITICAL: Respond with ONLY valid JSON. No explanations, reasoning, or markdown.`

// Tailor runs one tailoring pass for (cv, job).
func (s *TailorService) Tailor(ctx domain.Context, cv domain.CVContent, job domain.JobPosting, nowYear int) (domain.TailorResult, error) {
	before := MatchScore(cv, job, nowYear)
	beforeATS := ATSScore(cv, job)

	cvJSON, err := json.Marshal(cv)
	if err != nil {
		return domain.TailorResult{}, fmt.Errorf("op=tailor.encode: %w", err)
	}
	user := fmt.Sprintf("Job: %s at %s\n\nDescription:\n%s\n\nRequirements:\n%s\n\nCV JSON:\n%s",
		job.Title, job.Company, job.Description, strings.Join(job.Requirements, "\n"), cvJSON)

	resp, err := s.LLM.Invoke(ctx, "cv_tailor", []domain.ChatMessage{
		{Role: "system", Content: tailorSystemPrompt},
		{Role: "user", Content: user},
	}, 0.3)
	if err != nil {
		return domain.TailorResult{}, fmt.Errorf("op=tailor.invoke: %w", err)
	}

	var analysis domain.TailorAnalysis
	if derr := s.cleaner.Decode(resp, &analysis); derr != nil {
		// Malformed analysis degrades to "no changes": the user gets the
		// original CV back with honest scores instead of a failed turn.
		slog.Error("tailor analysis unparseable, applying no changes",
			slog.Any("error", derr),
			slog.Int("response_length", len(resp)))
		analysis = domain.TailorAnalysis{}
	}

	merged, stats := MergeAnalysis(cv, analysis)
	after := MatchScore(merged, job, nowYear)
	afterATS := ATSScore(merged, job)

	log := changeLog(stats, before.Total, after.Total, beforeATS, afterATS)
	return domain.TailorResult{
		Tailored:    merged,
		CoverLetter: strings.TrimSpace(analysis.CoverLetter),
		ChangeLog:   log,
		ATSScore:    afterATS,
		MatchScore:  after.Total,
		Analysis:    analysis,
	}, nil
}

// MergeStats counts what the merge actually applied, for the change log.
type MergeStats struct {
	Modified      map[domain.CVSection]int
	Added         map[domain.CVSection]int
	SkillsRemoved []string
	ExpProposed   int
	ExpKept       int
}

// FabricationCap bounds newly added experience entries to
// max(1, round(real/2)).
func FabricationCap(realCount int) int {
	n := int(math.Round(float64(realCount) / 2))
	if n < 1 {
		n = 1
	}
	return n
}

// MergeAnalysis folds the proposed edits into the CV. Modified entries
// replace the first fuzzy match of their original text and fall back
// to appending; new entries append. New experience rows beyond the
// fabrication cap are discarded.
func MergeAnalysis(cv domain.CVContent, analysis domain.TailorAnalysis) (domain.CVContent, MergeStats) {
	stats := MergeStats{
		Modified: make(map[domain.CVSection]int),
		Added:    make(map[domain.CVSection]int),
	}
	out := cloneContent(cv)
	expCap := FabricationCap(len(cv.Experience))
	var expAdded int

	apply := func(edits []domain.SectionEdit) {
		for _, e := range edits {
			if e.Section == domain.SectionExperience && e.Tag == domain.EditNew {
				stats.ExpProposed++
				if expAdded >= expCap {
					continue
				}
				expAdded++
				stats.ExpKept++
				out.Experience = append(out.Experience, newExperienceEntry(e))
				stats.Added[e.Section]++
				continue
			}
			if applySectionEdit(&out, e) {
				stats.Modified[e.Section]++
			} else {
				stats.Added[e.Section]++
			}
		}
	}
	apply(analysis.CVSections)
	apply(analysis.NonCVSections)

	if len(analysis.SkillsToRemove) > 0 {
		out.Skills, stats.SkillsRemoved = removeSkills(out.Skills, analysis.SkillsToRemove)
	}
	return out, stats
}

func cloneContent(cv domain.CVContent) domain.CVContent {
	out := cv
	out.Skills = append([]string(nil), cv.Skills...)
	out.Experience = append([]domain.ExperienceEntry(nil), cv.Experience...)
	for i := range out.Experience {
		out.Experience[i].Bullets = append([]string(nil), cv.Experience[i].Bullets...)
	}
	out.Education = append([]domain.EducationEntry(nil), cv.Education...)
	out.Projects = append([]domain.ProjectEntry(nil), cv.Projects...)
	out.Certifications = append([]string(nil), cv.Certifications...)
	out.Languages = append([]string(nil), cv.Languages...)
	return out
}

func newExperienceEntry(e domain.SectionEdit) domain.ExperienceEntry {
	if e.Entry != nil {
		return *e.Entry
	}
	return domain.ExperienceEntry{Title: e.Text}
}

// applySectionEdit returns true when an existing string was replaced,
// false when the edit was appended instead.
func applySectionEdit(cv *domain.CVContent, e domain.SectionEdit) bool {
	replaced := e.Tag == domain.EditModified
	switch e.Section {
	case domain.SectionSummary:
		if replaced && fuzzyEqual(cv.Summary, e.Original) {
			cv.Summary = e.Text
			return true
		}
		if strings.TrimSpace(cv.Summary) == "" {
			cv.Summary = e.Text
		} else {
			cv.Summary = cv.Summary + "\n\n" + e.Text
		}
		return false
	case domain.SectionSkills:
		if replaced && fuzzyReplace(cv.Skills, e.Original, e.Text) {
			return true
		}
		cv.Skills = appendUnique(cv.Skills, e.Text)
		return false
	case domain.SectionExperience:
		if replaced {
			for i := range cv.Experience {
				if fuzzyReplace(cv.Experience[i].Bullets, e.Original, e.Text) {
					return true
				}
			}
		}
		if len(cv.Experience) > 0 {
			last := &cv.Experience[len(cv.Experience)-1]
			last.Bullets = append(last.Bullets, e.Text)
		} else {
			cv.Experience = append(cv.Experience, newExperienceEntry(e))
		}
		return false
	case domain.SectionEducation:
		if replaced {
			for i := range cv.Education {
				if fuzzyEqual(cv.Education[i].Institution, e.Original) || fuzzyEqual(cv.Education[i].Degree, e.Original) {
					cv.Education[i].Degree = e.Text
					return true
				}
			}
		}
		cv.Education = append(cv.Education, domain.EducationEntry{Institution: e.Text})
		return false
	case domain.SectionProjects:
		if replaced {
			for i := range cv.Projects {
				if fuzzyEqual(cv.Projects[i].Name, e.Original) || fuzzyEqual(cv.Projects[i].Description, e.Original) {
					cv.Projects[i].Description = e.Text
					return true
				}
			}
		}
		cv.Projects = append(cv.Projects, domain.ProjectEntry{Name: e.Text})
		return false
	case domain.SectionCertifications:
		if replaced && fuzzyReplace(cv.Certifications, e.Original, e.Text) {
			return true
		}
		cv.Certifications = appendUnique(cv.Certifications, e.Text)
		return false
	default:
		// Unknown section: edit is dropped rather than guessed at.
		return false
	}
}

// fuzzyEqual is the intentionally simple three-step match: identical,
// equal on the first 40 characters, or substring with the shorter side
// at least 10 characters. No edit distance.
func fuzzyEqual(have, want string) bool {
	have = strings.TrimSpace(have)
	want = strings.TrimSpace(want)
	if have == "" || want == "" {
		return false
	}
	if have == want {
		return true
	}
	if len(have) >= 40 && len(want) >= 40 && have[:40] == want[:40] {
		return true
	}
	shorter := len(have)
	if len(want) < shorter {
		shorter = len(want)
	}
	if shorter >= 10 && (strings.Contains(have, want) || strings.Contains(want, have)) {
		return true
	}
	return false
}

func fuzzyReplace(list []string, original, replacement string) bool {
	for i, s := range list {
		if fuzzyEqual(s, original) {
			list[i] = replacement
			return true
		}
	}
	return false
}

func appendUnique(list []string, s string) []string {
	for _, have := range list {
		if strings.EqualFold(have, s) {
			return list
		}
	}
	return append(list, s)
}

func removeSkills(skills, remove []string) (kept, removed []string) {
	drop := make(map[string]bool, len(remove))
	for _, r := range remove {
		drop[strings.ToLower(strings.TrimSpace(r))] = true
	}
	for _, s := range skills {
		if drop[strings.ToLower(strings.TrimSpace(s))] {
			removed = append(removed, s)
			continue
		}
		kept = append(kept, s)
	}
	return kept, removed
}

// sectionOrder keeps the change log stable.
var sectionOrder = []domain.CVSection{
	domain.SectionSummary, domain.SectionSkills, domain.SectionExperience,
	domain.SectionEducation, domain.SectionProjects, domain.SectionCertifications,
}

func changeLog(stats MergeStats, beforeMatch, afterMatch, beforeATS, afterATS int) []string {
	var log []string
	for _, sec := range sectionOrder {
		m, a := stats.Modified[sec], stats.Added[sec]
		if m == 0 && a == 0 {
			continue
		}
		switch {
		case m > 0 && a > 0:
			log = append(log, fmt.Sprintf("%s: %d modified, %d added", sec, m, a))
		case m > 0:
			log = append(log, fmt.Sprintf("%s: %d modified", sec, m))
		default:
			log = append(log, fmt.Sprintf("%s: %d added", sec, a))
		}
	}
	if dropped := stats.ExpProposed - stats.ExpKept; dropped > 0 {
		log = append(log, fmt.Sprintf("experience: %d proposed entries discarded by the fabrication cap", dropped))
	}
	if len(stats.SkillsRemoved) > 0 {
		log = append(log, fmt.Sprintf("skills removed: %s", strings.Join(stats.SkillsRemoved, ", ")))
	}
	log = append(log,
		fmt.Sprintf("match score: %d -> %d", beforeMatch, afterMatch),
		fmt.Sprintf("ats score: %d -> %d", beforeATS, afterATS))
	return log
}

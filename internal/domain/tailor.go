package domain

// EditTag marks a proposed change as an edit or an addition.
type EditTag string

const (
	EditModified EditTag = "modified"
	EditNew      EditTag = "new"
)

// CVSection names the CV field an edit targets.
type CVSection string

const (
	SectionSummary        CVSection = "summary"
	SectionSkills         CVSection = "skills"
	SectionExperience     CVSection = "experience"
	SectionEducation      CVSection = "education"
	SectionProjects       CVSection = "projects"
	SectionCertifications CVSection = "certifications"
)

// SectionEdit is one change proposed by the tailoring call. Modified
// edits carry the original text they replace; new experience rows may
// carry a structured entry instead of flat text.
type SectionEdit struct {
	Section  CVSection        `json:"section"`
	Tag      EditTag          `json:"tag"`
	Original string           `json:"original,omitempty"`
	Text     string           `json:"text"`
	Entry    *ExperienceEntry `json:"entry,omitempty"`
}

// TailorAnalysis is the structured body of the tailoring response.
// CVSections edit fields the CV already has; NonCVSections add to
// fields that are absent or empty. The buckets are disjoint.
type TailorAnalysis struct {
	CVSections     []SectionEdit `json:"cv_sections"`
	NonCVSections  []SectionEdit `json:"non_cv_sections"`
	SkillsToRemove []string      `json:"skills_to_remove,omitempty"`
	CoverLetter    string        `json:"cover_letter,omitempty"`
}

// TailorResult is the full outcome of one tailoring run.
type TailorResult struct {
	Tailored    CVContent
	CoverLetter string
	ChangeLog   []string
	ATSScore    int
	MatchScore  int
	Analysis    TailorAnalysis
}

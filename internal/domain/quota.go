package domain

// QuotaPeriod is the window a counter covers.
type QuotaPeriod string

const (
	QuotaRPD QuotaPeriod = "rpd"
	QuotaRPM QuotaPeriod = "rpm"
	QuotaTPM QuotaPeriod = "tpm"
)

// QuotaKey identifies one counter.
type QuotaKey struct {
	Provider string
	Model    string
	Period   QuotaPeriod
}

// QuotaStatus is a point-in-time view of one counter. Limit 0 means
// unlimited; Pct is 0 in that case.
type QuotaStatus struct {
	Used  int64   `json:"used"`
	Limit int64   `json:"limit"`
	Pct   float64 `json:"pct"`
}

// QuotaEntry pairs a key with its status for snapshot listings.
type QuotaEntry struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Period   QuotaPeriod `json:"period"`
	QuotaStatus
}

// ModelSpec is one entry of the model pool. Zero limits are unlimited.
type ModelSpec struct {
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	RPD      int64  `yaml:"rpd,omitempty" json:"rpd,omitempty"`
	RPM      int64  `yaml:"rpm,omitempty" json:"rpm,omitempty"`
	TPM      int64  `yaml:"tpm,omitempty" json:"tpm,omitempty"`
}

// Limit returns the model's declared limit for a period.
func (m ModelSpec) Limit(p QuotaPeriod) int64 {
	switch p {
	case QuotaRPD:
		return m.RPD
	case QuotaRPM:
		return m.RPM
	case QuotaTPM:
		return m.TPM
	}
	return 0
}

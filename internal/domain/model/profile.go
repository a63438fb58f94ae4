package model

// Profile carries the fields of a marketplace participant used by feature
// extraction. Pointer fields are optional; nil means "unknown".
type Profile struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name,omitempty" yaml:"name"`
	City      string   `json:"city,omitempty" yaml:"city"`
	Region    string   `json:"region,omitempty" yaml:"region"`
	Country   string   `json:"country,omitempty" yaml:"country"`
	Expertise []string `json:"expertise,omitempty" yaml:"expertise"`

	// ComplianceScore is the regulatory standing on a 0..100 scale.
	ComplianceScore *float64 `json:"compliance_score,omitempty" yaml:"compliance_score"`

	// Headcount is the company size in employees.
	Headcount *int `json:"headcount,omitempty" yaml:"headcount"`

	// Stage is the company stage (seed, early, growth, late, enterprise). Used
	// for size compatibility when headcount is unknown on either side.
	Stage string `json:"stage,omitempty" yaml:"stage"`

	// Rating is the historical average rating on a 0..5 scale.
	Rating      *float64 `json:"rating,omitempty" yaml:"rating"`
	RatingCount int      `json:"rating_count,omitempty" yaml:"rating_count"`
}

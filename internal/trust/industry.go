package trust

import "sort"

// #region industry-profile

// IndustryProfile holds the weights an industry applies to score movement.
type IndustryProfile struct {
	Name               string  `json:"name"`
	VerificationWeight float64 `json:"verification_weight"`
	FraudPenalty       float64 `json:"fraud_penalty"`
	MinConfidence      float64 `json:"min_confidence"`
}

const (
	IndustryGeneral      = "general"
	IndustryHealthcare   = "healthcare"
	IndustryFinance      = "finance"
	IndustryConstruction = "construction"
	IndustryTechnology   = "technology"
	IndustryEducation    = "education"
)

var industries = map[string]IndustryProfile{
	IndustryGeneral:      {Name: IndustryGeneral, VerificationWeight: 1.0, FraudPenalty: 1.0, MinConfidence: 40},
	IndustryHealthcare:   {Name: IndustryHealthcare, VerificationWeight: 0.8, FraudPenalty: 1.5, MinConfidence: 60},
	IndustryFinance:      {Name: IndustryFinance, VerificationWeight: 0.85, FraudPenalty: 1.4, MinConfidence: 55},
	IndustryConstruction: {Name: IndustryConstruction, VerificationWeight: 1.1, FraudPenalty: 0.9, MinConfidence: 35},
	IndustryTechnology:   {Name: IndustryTechnology, VerificationWeight: 1.0, FraudPenalty: 1.1, MinConfidence: 45},
	IndustryEducation:    {Name: IndustryEducation, VerificationWeight: 0.9, FraudPenalty: 1.2, MinConfidence: 50},
}

// Profile returns the named industry profile, falling back to general.
func Profile(name string) IndustryProfile {
	if p, ok := industries[name]; ok {
		return p
	}
	return industries[IndustryGeneral]
}

// KnownIndustry reports whether name has a profile.
func KnownIndustry(name string) bool {
	_, ok := industries[name]
	return ok
}

// Industries lists the profile names in sorted order.
func Industries() []string {
	names := make([]string, 0, len(industries))
	for name := range industries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// #endregion industry-profile

// #region thresholds

var modeThresholds = map[EmployerMode]float64{
	ModeLenient:  45,
	ModeStandard: 60,
	ModeStrict:   75,
}

// ModeThreshold returns the pass threshold for an employer mode.
func ModeThreshold(m EmployerMode) float64 {
	if t, ok := modeThresholds[m]; ok {
		return t
	}
	return modeThresholds[ModeStandard]
}

var severityMultipliers = map[Severity]float64{
	SeverityLow:    1.0,
	SeverityMedium: 1.2,
	SeverityHigh:   1.5,
}

func severityMultiplier(s Severity) float64 {
	if m, ok := severityMultipliers[s]; ok {
		return m
	}
	return severityMultipliers[SeverityLow]
}

// #endregion thresholds

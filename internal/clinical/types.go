package clinical

// Unspecified is the display fallback for any scalar that no alias resolved.
const Unspecified = "unspecified"

// ToSpecify marks a derived field (lab code, imaging region) the table could not resolve.
const ToSpecify = "to specify"

// PatientRecord is the canonical patient view after alias resolution.
type PatientRecord struct {
	FirstName          string   `json:"firstName"`
	LastName           string   `json:"lastName"`
	FullName           string   `json:"fullName"`
	Age                int      `json:"age"`
	AgeText            string   `json:"ageText"`
	Sex                string   `json:"sex"`
	BirthDate          string   `json:"birthDate"`
	Phone              string   `json:"phone"`
	Email              string   `json:"email"`
	Address            string   `json:"address"`
	Weight             string   `json:"weight"`
	Height             string   `json:"height"`
	Allergies          []string `json:"allergies"`
	History            []string `json:"history"`
	CurrentMedications []string `json:"currentMedications"`
}

// VitalSigns is part of ClinicalObservation.
type VitalSigns struct {
	Temperature      string `json:"temperature"`
	BloodPressure    string `json:"bloodPressure"`
	HeartRate        string `json:"heartRate"`
	RespiratoryRate  string `json:"respiratoryRate"`
	OxygenSaturation string `json:"oxygenSaturation"`
}

type ClinicalObservation struct {
	ChiefComplaint  string     `json:"chiefComplaint"`
	Symptoms        []string   `json:"symptoms"`
	SymptomDuration string     `json:"symptomDuration"`
	Vitals          VitalSigns `json:"vitalSigns"`
	PhysicalExam    string     `json:"physicalExam"`
	PainScale       string     `json:"painScale"`
}

type DiagnosisSummary struct {
	Primary      string   `json:"primaryDiagnosis"`
	ICDCode      string   `json:"icdCode"`
	Confidence   string   `json:"confidence"`
	Differential []string `json:"differential"`
	Reasoning    string   `json:"clinicalReasoning"`
	FollowUp     string   `json:"followUp"`
}

// Canonical groups the three normalized records produced from one bundle.
type Canonical struct {
	Patient   PatientRecord       `json:"patientData"`
	Clinical  ClinicalObservation `json:"clinicalData"`
	Diagnosis DiagnosisSummary    `json:"diagnosisData"`
}

// Bundle re-encodes the canonical record under the primary alias names, so that
// normalizing the result yields the same record.
func (c Canonical) Bundle() map[string]any {
	p := c.Patient
	d := c.Diagnosis
	o := c.Clinical
	return map[string]any{
		"patientData": map[string]any{
			"firstName":          p.FirstName,
			"lastName":           p.LastName,
			"fullName":           p.FullName,
			"age":                p.AgeText,
			"sex":                p.Sex,
			"birthDate":          p.BirthDate,
			"phone":              p.Phone,
			"email":              p.Email,
			"address":            p.Address,
			"weight":             p.Weight,
			"height":             p.Height,
			"allergies":          toAny(p.Allergies),
			"medicalHistory":     toAny(p.History),
			"currentMedications": toAny(p.CurrentMedications),
		},
		"clinicalData": map[string]any{
			"chiefComplaint":  o.ChiefComplaint,
			"symptoms":        toAny(o.Symptoms),
			"symptomDuration": o.SymptomDuration,
			"vitalSigns": map[string]any{
				"temperature":      o.Vitals.Temperature,
				"bloodPressure":    o.Vitals.BloodPressure,
				"heartRate":        o.Vitals.HeartRate,
				"respiratoryRate":  o.Vitals.RespiratoryRate,
				"oxygenSaturation": o.Vitals.OxygenSaturation,
			},
			"physicalExam": o.PhysicalExam,
			"painScale":    o.PainScale,
		},
		"diagnosisData": map[string]any{
			"primaryDiagnosis":  d.Primary,
			"icdCode":           d.ICDCode,
			"confidence":        d.Confidence,
			"differential":      toAny(d.Differential),
			"clinicalReasoning": d.Reasoning,
			"followUp":          d.FollowUp,
		},
	}
}

func toAny(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

package main

import (
	"context"
	"os"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/observability"
	"github.com/zatekoja/Clinicalordervalidation/backend/pkg/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS diagnosis_codes (
	code               TEXT PRIMARY KEY,
	description        TEXT NOT NULL,
	clinical_notes     TEXT,
	imaging_modalities TEXT[] NOT NULL DEFAULT '{}',
	primary_imaging    BOOLEAN NOT NULL DEFAULT FALSE,
	keywords           TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS procedure_codes (
	code        TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	modality    TEXT,
	body_part   TEXT
);

CREATE TABLE IF NOT EXISTS code_mappings (
	diagnosis_code      TEXT NOT NULL REFERENCES diagnosis_codes(code),
	procedure_code      TEXT NOT NULL REFERENCES procedure_codes(code),
	appropriateness     NUMERIC NOT NULL CHECK (appropriateness BETWEEN 1 AND 9),
	evidence_strength   NUMERIC,
	specialty_relevance NUMERIC,
	patient_factor      NUMERIC,
	justification       TEXT,
	evidence            TEXT,
	PRIMARY KEY (diagnosis_code, procedure_code)
);

CREATE TABLE IF NOT EXISTS reference_documents (
	id             BIGSERIAL PRIMARY KEY,
	diagnosis_code TEXT NOT NULL REFERENCES diagnosis_codes(code),
	title          TEXT,
	content        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rare_conditions (
	code        TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL,
	symptoms    TEXT
);
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	observability.InitLogger("seed", "development")

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to DB")
	}
	defer pgClient.Close()

	ctx := context.Background()

	if _, err := pgClient.DB().ExecContext(ctx, schema); err != nil {
		log.Fatal().Err(err).Msg("Failed to create reference tables")
	}

	if os.Getenv("RESET_DB") == "true" {
		log.Info().Msg("RESET_DB=true detected, truncating tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `
			TRUNCATE TABLE
				reference_documents,
				code_mappings,
				diagnosis_codes,
				procedure_codes,
				rare_conditions
			RESTART IDENTITY CASCADE
		`)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to reset tables")
		}
	}

	db := goqu.New("postgres", pgClient.DB())

	diagnoses := []entities.DiagnosisCode{
		{Code: "R10.13", Description: "Epigastric pain", ClinicalNotes: "Abdominal ultrasound is the first-line study", ImagingModalities: []string{"ultrasound", "ct"}, PrimaryImaging: true, Keywords: []string{"abdominal pain", "upper abdomen"}},
		{Code: "R10.11", Description: "Right upper quadrant pain", ClinicalNotes: "Consider gallbladder ultrasound", ImagingModalities: []string{"ultrasound"}, PrimaryImaging: true, Keywords: []string{"ruq pain", "abdominal pain"}},
		{Code: "K80.20", Description: "Calculus of gallbladder without cholecystitis without obstruction", ClinicalNotes: "Ultrasound confirms stones", ImagingModalities: []string{"ultrasound"}, PrimaryImaging: true, Keywords: []string{"gallstones"}},
		{Code: "M25.561", Description: "Pain in right knee", ImagingModalities: []string{"x-ray", "mri"}, Keywords: []string{"knee pain"}},
		{Code: "S72.001A", Description: "Fracture of unspecified part of neck of right femur, initial encounter", ImagingModalities: []string{"x-ray", "ct"}, PrimaryImaging: true, Keywords: []string{"hip fracture"}},
	}
	procedures := []entities.ProcedureCode{
		{Code: "76700", Description: "Ultrasound, abdominal, real time with image documentation; complete", Modality: "ultrasound", BodyPart: "abdomen"},
		{Code: "76705", Description: "Ultrasound, abdominal, real time with image documentation; limited", Modality: "ultrasound", BodyPart: "abdomen"},
		{Code: "74177", Description: "CT abdomen and pelvis with contrast", Modality: "ct", BodyPart: "abdomen"},
		{Code: "73721", Description: "MRI any joint of lower extremity without contrast", Modality: "mri", BodyPart: "knee"},
		{Code: "73552", Description: "X-ray femur, minimum 2 views", Modality: "x-ray", BodyPart: "femur"},
	}
	mappings := []entities.Mapping{
		{DiagnosisCode: "R10.13", ProcedureCode: "76700", Appropriateness: 9, EvidenceStrength: 8, SpecialtyRelevance: 8, PatientFactor: 5, Justification: "Ultrasound is first line for epigastric pain", Evidence: "ACR Appropriateness Criteria, right upper quadrant pain"},
		{DiagnosisCode: "R10.13", ProcedureCode: "74177", Appropriateness: 6, EvidenceStrength: 6, SpecialtyRelevance: 5, PatientFactor: 5, Justification: "CT when ultrasound is nondiagnostic"},
		{DiagnosisCode: "K80.20", ProcedureCode: "76705", Appropriateness: 9, EvidenceStrength: 9, SpecialtyRelevance: 9, PatientFactor: 5, Justification: "Limited ultrasound confirms gallstones"},
		{DiagnosisCode: "M25.561", ProcedureCode: "73721", Appropriateness: 7, EvidenceStrength: 7, SpecialtyRelevance: 8, PatientFactor: 6, Justification: "MRI after nondiagnostic radiographs"},
		{DiagnosisCode: "S72.001A", ProcedureCode: "73552", Appropriateness: 9, EvidenceStrength: 9, SpecialtyRelevance: 9, PatientFactor: 7, Justification: "Radiographs are the initial study for suspected femoral fracture"},
	}
	documents := []entities.ReferenceDocument{
		{DiagnosisCode: "R10.13", Title: "Imaging of epigastric pain", Content: "Ultrasound is the initial imaging test for epigastric and right upper quadrant pain. CT abdomen and pelvis is reserved for nondiagnostic ultrasound or suspected complications."},
		{DiagnosisCode: "K80.20", Title: "Gallstone disease", Content: "Transabdominal ultrasound has high sensitivity for cholelithiasis and is the preferred first study."},
		{DiagnosisCode: "M25.561", Title: "Knee pain", Content: "Radiographs precede MRI for atraumatic knee pain in adults."},
	}
	rare := []entities.RareCondition{
		{Code: "E75.22", Name: "Gaucher disease", Description: "Lysosomal storage disorder caused by glucocerebrosidase deficiency", Symptoms: "splenomegaly, hepatomegaly, bone pain, thrombocytopenia"},
		{Code: "Q79.6", Name: "Ehlers-Danlos syndrome", Description: "Heritable connective tissue disorder", Symptoms: "joint hypermobility, skin hyperextensibility, easy bruising"},
		{Code: "E85.0", Name: "Hereditary amyloidosis", Description: "Transthyretin amyloid deposition", Symptoms: "peripheral neuropathy, cardiomyopathy, carpal tunnel syndrome"},
	}

	var records []interface{}
	for _, d := range diagnoses {
		records = append(records, goqu.Record{
			"code": d.Code, "description": d.Description, "clinical_notes": d.ClinicalNotes,
			"imaging_modalities": pq.Array(d.ImagingModalities), "primary_imaging": d.PrimaryImaging,
			"keywords": pq.Array(d.Keywords),
		})
	}
	insert(ctx, db, "diagnosis_codes", records)

	records = nil
	for _, p := range procedures {
		records = append(records, goqu.Record{"code": p.Code, "description": p.Description, "modality": p.Modality, "body_part": p.BodyPart})
	}
	insert(ctx, db, "procedure_codes", records)

	records = nil
	for _, m := range mappings {
		if err := m.Validate(); err != nil {
			log.Fatal().Err(err).Str("mapping", m.Key()).Msg("Invalid seed mapping")
		}
		records = append(records, goqu.Record{
			"diagnosis_code": m.DiagnosisCode, "procedure_code": m.ProcedureCode,
			"appropriateness": m.Appropriateness, "evidence_strength": m.EvidenceStrength,
			"specialty_relevance": m.SpecialtyRelevance, "patient_factor": m.PatientFactor,
			"justification": m.Justification, "evidence": m.Evidence,
		})
	}
	insert(ctx, db, "code_mappings", records)

	records = nil
	for _, d := range documents {
		records = append(records, goqu.Record{"diagnosis_code": d.DiagnosisCode, "title": d.Title, "content": d.Content})
	}
	insert(ctx, db, "reference_documents", records)

	records = nil
	for _, r := range rare {
		records = append(records, goqu.Record{"code": r.Code, "name": r.Name, "description": r.Description, "symptoms": r.Symptoms})
	}
	insert(ctx, db, "rare_conditions", records)

	log.Info().
		Int("diagnoses", len(diagnoses)).
		Int("procedures", len(procedures)).
		Int("mappings", len(mappings)).
		Int("documents", len(documents)).
		Int("rare_conditions", len(rare)).
		Msg("Seeding completed; run cmd/indexer and cmd/warmup to load the search and cache tiers")
}

func insert(ctx context.Context, db *goqu.Database, table string, records []interface{}) {
	_, err := db.Insert(table).Rows(records...).OnConflict(goqu.DoNothing()).Executor().ExecContext(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("table", table).Msg("Failed to seed table")
	}
}

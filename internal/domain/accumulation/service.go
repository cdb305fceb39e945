package accumulation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebenefits/platform/internal/platform/blobstore"
	"github.com/carebenefits/platform/internal/platform/db"
	"github.com/carebenefits/platform/internal/platform/jobs"
	"github.com/carebenefits/platform/internal/platform/metrics"
)

var (
	npiPattern  = regexp.MustCompile(`^\d{10}$`)
	codePattern = regexp.MustCompile(`^[A-Za-z0-9.]{3,10}$`)
)

type Service struct {
	profiles   Profiles
	mappings   MappingRepository
	procedures ProcedureRepository
	reports    ReportRepository
	blobs      blobstore.Store
	tx         db.TxFunc
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(profiles Profiles, mappings MappingRepository, procedures ProcedureRepository, reports ReportRepository,
	blobs blobstore.Store, tx db.TxFunc, logger zerolog.Logger) *Service {
	return &Service{
		profiles:   profiles,
		mappings:   mappings,
		procedures: procedures,
		reports:    reports,
		blobs:      blobs,
		tx:         tx,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) Profiles() Profiles { return s.profiles }

// Now is the service clock.
func (s *Service) Now() time.Time { return s.now() }

func (s *Service) profile(payer string) (Profile, error) {
	p, ok := s.profiles[payer]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownPayer, payer)
	}
	return p, nil
}

// checkRow returns the reason a row cannot be sent, or "".
func checkRow(r *Row) string {
	tp, m := r.Procedure, r.Mapping
	switch {
	case r.Plan == nil:
		return "no health plan for service date"
	case strings.TrimSpace(r.Plan.SubscriberID) == "":
		return "missing subscriber id"
	case relationshipCodes[r.Plan.Relationship] == "":
		return fmt.Sprintf("unknown relationship %q", r.Plan.Relationship)
	case !codePattern.MatchString(tp.ProcedureCode):
		return fmt.Sprintf("invalid procedure code %q", tp.ProcedureCode)
	case !codePattern.MatchString(tp.DiagnosisCode):
		return fmt.Sprintf("invalid diagnosis code %q", tp.DiagnosisCode)
	case !npiPattern.MatchString(tp.ProviderNPI):
		return fmt.Sprintf("invalid provider npi %q", tp.ProviderNPI)
	case tp.CostCents <= 0:
		return "cost must be positive"
	case tp.EndDate.Before(tp.StartDate):
		return "end date precedes start date"
	case m.DeductibleCents < 0 || m.OOPAppliedCents < 0:
		return "negative responsibility"
	case m.OOPAppliedCents < m.DeductibleCents:
		return "out of pocket is less than deductible"
	case m.OOPAppliedCents > tp.CostCents:
		return "out of pocket exceeds cost"
	}
	return ""
}

func toClaim(r *Row) Claim {
	p, tp := r.Plan, r.Procedure
	sex := strings.ToUpper(p.PatientSex)
	if sex != "M" && sex != "F" {
		sex = "U"
	}
	return Claim{
		ID:                  strings.ReplaceAll(r.Mapping.ID.String(), "-", ""),
		SubscriberID:        p.SubscriberID,
		SubscriberFirstName: p.SubscriberFirstName,
		SubscriberLastName:  p.SubscriberLastName,
		SubscriberDOB:       p.SubscriberDOB,
		PatientFirstName:    p.PatientFirstName,
		PatientLastName:     p.PatientLastName,
		PatientDOB:          p.PatientDOB,
		PatientSex:          sex,
		Relationship:        p.Relationship,
		ProcedureCode:       tp.ProcedureCode,
		DiagnosisCode:       tp.DiagnosisCode,
		ServiceStart:        tp.StartDate,
		ServiceEnd:          tp.EndDate,
		ChargeCents:         tp.CostCents,
		DeductibleCents:     r.Mapping.DeductibleCents,
		OOPCents:            r.Mapping.OOPAppliedCents,
	}
}

// split partitions rows into sendable claims and row errors.
func split(rows []*Row) ([]Claim, []uuid.UUID, []RowError) {
	var (
		claims []Claim
		ids    []uuid.UUID
		errs   []RowError
	)
	for _, r := range rows {
		if reason := checkRow(r); reason != "" {
			errs = append(errs, RowError{MappingID: r.Mapping.ID, Reason: reason})
			continue
		}
		claims = append(claims, toClaim(r))
		ids = append(ids, r.Mapping.ID)
	}
	return claims, ids, errs
}

// fileName carries the interchange control number so two files generated in
// the same second get distinct names.
func fileName(p Profile, ctrl int, now time.Time) string {
	return fmt.Sprintf("%s_%s_%09d.edi", p.FilePrefix, now.UTC().Format("20060102_150405"), ctrl)
}

// GenerateFile builds and stores the payer's accumulation file. It returns a
// nil report when no row could be sent.
func (s *Service) GenerateFile(ctx context.Context, payer string, now time.Time) (*Report, []RowError, error) {
	p, err := s.profile(payer)
	if err != nil {
		return nil, nil, err
	}
	log := s.logger.With().Str("payer", payer).Logger()
	var (
		report  *Report
		rowErrs []RowError
		blobKey string
	)
	err = s.tx(ctx, func(ctx context.Context) error {
		rows, err := s.mappings.ListWaiting(ctx, payer)
		if err != nil {
			return err
		}
		claims, ids, errs := split(rows)
		rowErrs = errs
		for _, e := range errs {
			if err := s.mappings.MarkRowError(ctx, e.MappingID, e.Reason); err != nil {
				return err
			}
		}
		if len(claims) == 0 {
			return nil
		}

		ctrl, err := s.reports.NextControlNumber(ctx)
		if err != nil {
			return err
		}
		data, err := Encode(Interchange{Profile: p, ControlNumber: ctrl, Created: now.UTC(), Claims: claims})
		if err != nil {
			return err
		}
		name := fileName(p, ctrl, now)
		key := fmt.Sprintf("payer_accumulation/%s/%s", payer, name)
		if existing, _, err := s.blobs.Get(ctx, key); err == nil {
			existing.Close()
			return fmt.Errorf("%w: %s", ErrFileExists, key)
		} else if !errors.Is(err, blobstore.ErrNotFound) {
			return fmt.Errorf("check accumulation file: %w", err)
		}
		obj, err := s.blobs.Put(ctx, key, "application/edi-x12", bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("store accumulation file: %w", err)
		}
		// Only a blob written by this call is removed on rollback.
		blobKey = obj.Key

		y, m, d := now.UTC().Date()
		report = &Report{
			PayerName:     payer,
			FileName:      name,
			ReportDate:    time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
			Status:        ReportNew,
			BlobKey:       obj.Key,
			RowCount:      len(claims),
			ControlNumber: ctrl,
		}
		if err := s.reports.Create(ctx, report); err != nil {
			return err
		}
		return s.mappings.MarkProcessed(ctx, ids, report.ID)
	})
	if err != nil {
		if blobKey != "" {
			if derr := s.blobs.Delete(ctx, blobKey); derr != nil {
				log.Warn().Err(derr).Str("key", blobKey).Msg("failed to remove orphaned accumulation file")
			}
		}
		return nil, nil, err
	}

	metrics.RecordAccumulationRows(payer, "row_error", len(rowErrs))
	if report == nil {
		log.Info().Int("row_errors", len(rowErrs)).Msg("no accumulation rows to send")
		return nil, rowErrs, nil
	}
	metrics.RecordAccumulationRows(payer, "processed", report.RowCount)
	log.Info().Str("file", report.FileName).Int("rows", report.RowCount).Int("row_errors", len(rowErrs)).
		Msg("accumulation file generated")
	return report, rowErrs, nil
}

// Preview renders the file GenerateFile would produce without writing
// anything. The control number is always 1.
func (s *Service) Preview(ctx context.Context, payer string, now time.Time) ([]byte, []RowError, error) {
	p, err := s.profile(payer)
	if err != nil {
		return nil, nil, err
	}
	var (
		data []byte
		errs []RowError
	)
	err = s.tx(ctx, func(ctx context.Context) error {
		rows, err := s.mappings.ListWaiting(ctx, payer)
		if err != nil {
			return err
		}
		var claims []Claim
		claims, _, errs = split(rows)
		if len(claims) == 0 {
			return nil
		}
		data, err = Encode(Interchange{Profile: p, ControlNumber: 1, Created: now.UTC(), Claims: claims})
		return err
	})
	return data, errs, err
}

// GenerateAll runs GenerateFile for every profile. A failing payer does not
// stop the others.
func (s *Service) GenerateAll(ctx context.Context) error {
	var failed []string
	for _, payer := range s.profiles.Names() {
		if _, _, err := s.GenerateFile(ctx, payer, s.now()); err != nil {
			s.logger.Error().Err(err).Str("payer", payer).Msg("accumulation file generation failed")
			failed = append(failed, payer)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("accumulation failed for %s", strings.Join(failed, ", "))
	}
	return nil
}

func (s *Service) MarkSubmitted(ctx context.Context, reportID uuid.UUID) (*Report, error) {
	var rep *Report
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		rep, err = s.reports.GetByID(ctx, reportID)
		if err != nil {
			return err
		}
		if rep.Status != ReportNew {
			return fmt.Errorf("%w: report is %s", ErrInvalidState, rep.Status)
		}
		if err := s.reports.UpdateStatus(ctx, rep.ID, ReportSubmitted); err != nil {
			return err
		}
		_, err = s.mappings.MarkReportSubmitted(ctx, rep.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	rep.Status = ReportSubmitted
	return rep, nil
}

func (s *Service) ListReports(ctx context.Context, payer string, limit, offset int) ([]*Report, int, error) {
	return s.reports.List(ctx, payer, limit, offset)
}

// ReportFile opens the stored file of a report.
func (s *Service) ReportFile(ctx context.Context, reportID uuid.UUID) (io.ReadCloser, *Report, error) {
	rep, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := s.blobs.Get(ctx, rep.BlobKey)
	if err != nil {
		return nil, nil, err
	}
	return rc, rep, nil
}

// RegisterProcedure queues a treatment procedure for the payer's next file.
func (s *Service) RegisterProcedure(ctx context.Context, in *MappingInput) (*Mapping, error) {
	if _, err := s.profile(in.PayerName); err != nil {
		return nil, invalid("unknown payer %q", in.PayerName)
	}
	if in.DeductibleCents < 0 || in.OOPAppliedCents < 0 {
		return nil, invalid("responsibility amounts cannot be negative")
	}
	if in.OOPAppliedCents < in.DeductibleCents {
		return nil, invalid("oop_applied_cents must include deductible_cents")
	}
	if _, err := s.procedures.GetByID(ctx, in.TreatmentProcedureID); err != nil {
		return nil, err
	}
	m := &Mapping{
		TreatmentProcedureID: in.TreatmentProcedureID,
		PayerName:            in.PayerName,
		Status:               MappingWaiting,
		DeductibleCents:      in.DeductibleCents,
		OOPAppliedCents:      in.OOPAppliedCents,
	}
	if err := s.mappings.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GenerateFilesJob runs every payer profile.
func (s *Service) GenerateFilesJob() jobs.HandlerFunc {
	return func(ctx context.Context, _ jobs.Job) error {
		return s.GenerateAll(ctx)
	}
}

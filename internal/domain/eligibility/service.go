package eligibility

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/carebenefits/platform/internal/domain/member"
	"github.com/carebenefits/platform/internal/platform/db"
)

// Members is the member-side dependency of onboarding.
type Members interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*member.Organization, error)
	AttachToOrganization(ctx context.Context, memberID, orgID uuid.UUID) error
}

type Service struct {
	e9y           Client
	verifications VerificationRepository
	members       Members
	tx            db.TxFunc
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(e9y Client, verifications VerificationRepository, members Members, tx db.TxFunc, logger zerolog.Logger) *Service {
	return &Service{
		e9y:           e9y,
		verifications: verifications,
		members:       members,
		tx:            tx,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *Service) lookup(ctx context.Context, req *VerifyRequest) (*Record, string, error) {
	if req.CompanyEmail != "" {
		rec, err := s.e9y.CheckStandardEligibility(ctx, req.DateOfBirth, strings.ToLower(strings.TrimSpace(req.CompanyEmail)))
		return rec, VerificationTypeStandard, err
	}
	if req.FirstName == "" || req.LastName == "" {
		return nil, "", invalid("first_name and last_name are required without company_email")
	}
	rec, err := s.e9y.CheckAlternateEligibility(ctx, req.FirstName, req.LastName, req.DateOfBirth, req.UniqueCorpID)
	return rec, VerificationTypeAlternate, err
}

// VerifyEnterprise checks the member against e9y and links them to the
// matching organization.
func (s *Service) VerifyEnterprise(ctx context.Context, memberID uuid.UUID, req *VerifyRequest) (*Verification, error) {
	if req.DateOfBirth == "" {
		return nil, invalid("date_of_birth is required")
	}
	if _, err := time.Parse(dateLayout, req.DateOfBirth); err != nil {
		return nil, invalid("date_of_birth must be YYYY-MM-DD")
	}

	rec, vtype, err := s.lookup(ctx, req)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotEligible
	}
	if err != nil {
		return nil, err
	}
	if !rec.Active(s.now()) {
		return nil, ErrNotEligible
	}

	orgID, err := uuid.Parse(rec.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("e9y returned invalid organization id %q", rec.OrganizationID)
	}

	existing, err := s.verifications.GetByMemberAndOrganization(ctx, memberID, orgID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	remote, err := s.e9y.CreateVerificationForUser(ctx, &CreateVerificationRequest{
		UserID:              memberID.String(),
		OrganizationID:      rec.OrganizationID,
		EligibilityMemberID: rec.ID,
		VerificationType:    vtype,
		FirstName:           rec.FirstName,
		LastName:            rec.LastName,
		DateOfBirth:         rec.DateOfBirth,
		WorkEmail:           rec.WorkEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("create e9y verification: %w", err)
	}

	v, err := verificationFromRemote(memberID, orgID, remote, rec)
	if err != nil {
		return nil, err
	}
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.verifications.Create(ctx, v); err != nil {
			return err
		}
		return s.members.AttachToOrganization(ctx, memberID, orgID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("member_id", memberID.String()).
		Str("organization_id", orgID.String()).
		Str("verification_type", vtype).
		Msg("enterprise verification created")
	return v, nil
}

func verificationFromRemote(memberID, orgID uuid.UUID, remote *RemoteVerification, rec *Record) (*Verification, error) {
	start, err := parseDate(rec.EffectiveStart)
	if err != nil {
		return nil, fmt.Errorf("invalid effective_start: %w", err)
	}
	end, err := parseDate(rec.EffectiveEnd)
	if err != nil {
		return nil, fmt.Errorf("invalid effective_end: %w", err)
	}
	v := &Verification{
		MemberID:             memberID,
		OrganizationID:       orgID,
		RemoteVerificationID: remote.ID,
		VerificationType:     remote.VerificationType,
		VerifiedAt:           remote.VerifiedAt,
		EffectiveStart:       start,
		EffectiveEnd:         end,
	}
	if v.VerificationType == "" {
		v.VerificationType = VerificationTypeStandard
	}
	if v.VerifiedAt.IsZero() {
		v.VerifiedAt = time.Now().UTC()
	}
	if rec.ID != 0 {
		id := rec.ID
		v.EligibilityMemberID = &id
	}
	return v, nil
}

// GetVerification returns the member's verification. When nothing is stored
// locally it asks e9y and stores what e9y returns.
func (s *Service) GetVerification(ctx context.Context, memberID uuid.UUID) (*Verification, error) {
	v, err := s.verifications.GetByMember(ctx, memberID)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return v, err
	}

	remote, err := s.e9y.GetVerificationForUser(ctx, memberID.String())
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	orgID, err := uuid.Parse(remote.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("e9y returned invalid organization id %q", remote.OrganizationID)
	}
	rec := &Record{
		ID:             remote.EligibilityMemberID,
		EffectiveStart: remote.EffectiveStart,
		EffectiveEnd:   remote.EffectiveEnd,
	}
	v, err = verificationFromRemote(memberID, orgID, remote, rec)
	if err != nil {
		return nil, err
	}
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.verifications.Create(ctx, v); err != nil {
			return err
		}
		return s.members.AttachToOrganization(ctx, memberID, orgID)
	})
	if db.IsUniqueViolation(err, "") {
		// stored by a concurrent lookup
		return s.verifications.GetByMember(ctx, memberID)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("member_id", memberID.String()).
		Str("organization_id", orgID.String()).
		Int64("remote_verification_id", v.RemoteVerificationID).
		Msg("e9y verification stored")
	return v, nil
}

// CreateTestMembers seeds e9y with synthetic rows for a test organization.
func (s *Service) CreateTestMembers(ctx context.Context, orgID uuid.UUID, specs []TestMemberSpec) ([]Record, error) {
	if len(specs) == 0 {
		return nil, &TestMemberCreationError{OrganizationID: orgID, Reason: "at least one member is required"}
	}
	org, err := s.members.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !org.IsTest {
		return nil, &TestMemberCreationError{OrganizationID: orgID, Reason: "organization is not a test organization"}
	}
	for i, spec := range specs {
		if spec.FirstName == "" || spec.LastName == "" || spec.DateOfBirth == "" {
			return nil, &TestMemberCreationError{OrganizationID: orgID, Reason: fmt.Sprintf("member %d: first_name, last_name and date_of_birth are required", i)}
		}
	}

	recs, err := s.e9y.CreateTestMembers(ctx, orgID.String(), specs)
	if err != nil {
		return nil, &TestMemberCreationError{OrganizationID: orgID, Reason: "e9y request failed", Err: err}
	}
	return recs, nil
}

package otpsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
)

type OTPService struct {
	repo   otp.Repository
	sender otp.Sender
	ttl    time.Duration
	now    func() time.Time
}

func NewOTPService(repo otp.Repository, sender otp.Sender) *OTPService {
	return &OTPService{
		repo:   repo,
		sender: sender,
		ttl:    otp.DefaultTTL,
		now:    time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *OTPService) WithClock(now func() time.Time) *OTPService {
	s.now = now
	return s
}

// GenerateOTP creates a code for contact, replacing any earlier one, and sends it
func (s *OTPService) GenerateOTP(ctx context.Context, tenant kernel.TenantContext, contact string, purpose otp.Purpose) (*otp.OTP, error) {
	now := s.now().UTC()

	existing, err := s.repo.FindLatest(ctx, tenant.ApplicationID, contact, purpose)
	if err != nil && !errx.IsCode(err, otp.CodeNotFound) {
		return nil, err
	}
	if existing != nil && existing.IsValid(now) {
		if wait := otp.ResendInterval - now.Sub(existing.CreatedAt); wait > 0 {
			return nil, otp.ErrTooManyRequests().WithDetail("retry_after_seconds", int(wait.Seconds())+1)
		}
	}

	newOTP, code, err := otp.New(tenant.ApplicationID, contact, purpose, s.ttl, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, newOTP); err != nil {
		return nil, err
	}

	if err := s.sender.SendCode(ctx, tenant, newOTP.Contact, code, purpose); err != nil {
		return nil, errx.Wrap(err, "failed to send verification code", errx.TypeExternal)
	}
	return newOTP, nil
}

// VerifyOTP checks code against the latest code for contact. Every call
// spends an attempt, including failed ones.
func (s *OTPService) VerifyOTP(ctx context.Context, appID kernel.ApplicationID, contact string, purpose otp.Purpose, code string) (*otp.OTP, error) {
	entity, err := s.repo.FindLatest(ctx, appID, contact, purpose)
	if err != nil {
		if errx.IsCode(err, otp.CodeNotFound) {
			return nil, otp.ErrInvalidOTP()
		}
		return nil, err
	}

	before := entity.Attempts
	verifyErr := entity.Attempt(code, s.now().UTC())
	if entity.Attempts != before {
		if err := s.repo.Update(ctx, entity); err != nil {
			if errx.IsCode(err, otp.CodeNotFound) {
				return nil, otp.ErrInvalidOTP()
			}
			return nil, err
		}
	}
	if verifyErr != nil {
		return nil, verifyErr
	}
	return entity, nil
}

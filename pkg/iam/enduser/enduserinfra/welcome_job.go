package enduserinfra

import (
	"context"

	"github.com/Abraxas-365/tenantauth/pkg/iam/enduser"
	"github.com/Abraxas-365/tenantauth/pkg/jobx"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
)

const (
	WelcomeEmailJob = "enduser.welcome_email"
	MailQueue       = "mail"
)

// welcomePayload carries only what the template needs. The password hash
// never leaves the database.
type welcomePayload struct {
	Tenant    kernel.TenantContext `json:"tenant"`
	UserID    kernel.UserID        `json:"user_id"`
	Email     string               `json:"email"`
	FirstName string               `json:"first_name"`
}

// QueuedWelcomeMailer defers welcome emails to the job queue so registration
// never waits on the email provider.
type QueuedWelcomeMailer struct {
	jobs jobx.JobEnqueuer
}

func NewQueuedWelcomeMailer(jobs jobx.JobEnqueuer) *QueuedWelcomeMailer {
	return &QueuedWelcomeMailer{jobs: jobs}
}

func (m *QueuedWelcomeMailer) SendWelcome(ctx context.Context, tenant kernel.TenantContext, user enduser.EndUser) error {
	job, err := jobx.NewJob(WelcomeEmailJob, MailQueue, welcomePayload{
		Tenant:    tenant,
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
	})
	if err != nil {
		return err
	}
	_, err = m.jobs.Enqueue(ctx, job)
	return err
}

// WelcomeJobHandler delivers a queued welcome email through mailer.
func WelcomeJobHandler(mailer enduser.WelcomeMailer) jobx.HandlerFunc {
	return func(ctx context.Context, job *jobx.JobInfo) error {
		var payload welcomePayload
		if err := job.Decode(&payload); err != nil {
			return err
		}
		return mailer.SendWelcome(ctx, payload.Tenant, enduser.EndUser{
			ID:            payload.UserID,
			ApplicationID: payload.Tenant.ApplicationID,
			Email:         payload.Email,
			FirstName:     payload.FirstName,
		})
	}
}

package applicationsrv

import (
	"context"
	"fmt"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam"
	"github.com/Abraxas-365/tenantauth/pkg/iam/application"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/Abraxas-365/tenantauth/pkg/logx"
)

const (
	maxSlugAttempts = 100
	secretNotice    = "Save this secret key securely. It will not be shown again."
)

// ApplicationService carries out the admin commands on tenants
type ApplicationService struct {
	repo     application.ApplicationRepository
	registry *KeyRegistry
	now      func() time.Time
}

func NewApplicationService(repo application.ApplicationRepository, registry *KeyRegistry) *ApplicationService {
	return &ApplicationService{
		repo:     repo,
		registry: registry,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *ApplicationService) WithClock(now func() time.Time) *ApplicationService {
	s.now = now
	return s
}

// Create registers a tenant. The full secret key is returned only here.
func (s *ApplicationService) Create(ctx context.Context, req application.CreateApplicationRequest) (*application.CreatedApplicationDTO, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	slug, err := s.uniqueSlug(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	keys, err := application.GenerateKeys()
	if err != nil {
		return nil, err
	}

	app := application.NewApplication(req.Name, slug, keys, s.now().UTC())
	if err := s.repo.Save(ctx, app); err != nil {
		return nil, err
	}

	logx.WithContext(ctx).WithFields(logx.Fields{
		"application_id": app.ID,
		"slug":           app.Slug,
	}).Info("Application created")

	return &application.CreatedApplicationDTO{
		Application: app.ToDTO(),
		SecretKey:   keys.SecretKey,
		Message:     secretNotice,
	}, nil
}

// List pages through every application, newest first. Secrets are masked.
func (s *ApplicationService) List(ctx context.Context, opts kernel.PaginationOptions) (kernel.Paginated[application.ApplicationDTO], error) {
	opts = opts.Normalize()
	apps, total, err := s.repo.List(ctx, opts)
	if err != nil {
		return kernel.Paginated[application.ApplicationDTO]{}, err
	}

	items := make([]application.ApplicationDTO, 0, len(apps))
	for _, app := range apps {
		items = append(items, app.ToDTO())
	}
	return kernel.NewPaginated(items, opts, total), nil
}

func (s *ApplicationService) Get(ctx context.Context, id kernel.ApplicationID) (*application.ApplicationDTO, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := app.ToDTO()
	return &dto, nil
}

// GetKeys shows the public key in full and the secret masked
func (s *ApplicationService) GetKeys(ctx context.Context, id kernel.ApplicationID) (*application.KeysDTO, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &application.KeysDTO{
		PublicKey:       app.PublicKey,
		MaskedSecretKey: application.Mask(app.SecretKey),
	}, nil
}

func (s *ApplicationService) Deactivate(ctx context.Context, id kernel.ApplicationID) (*application.ApplicationDTO, error) {
	return s.mutate(ctx, id, func(app *application.Application, now time.Time) error {
		app.Deactivate(now)
		return nil
	})
}

func (s *ApplicationService) Activate(ctx context.Context, id kernel.ApplicationID) (*application.ApplicationDTO, error) {
	return s.mutate(ctx, id, func(app *application.Application, now time.Time) error {
		app.Activate(now)
		return nil
	})
}

// RegenerateSecret replaces the secret key and returns it once
func (s *ApplicationService) RegenerateSecret(ctx context.Context, id kernel.ApplicationID) (*application.CreatedApplicationDTO, error) {
	secretKey, err := application.GenerateSecretKey()
	if err != nil {
		return nil, err
	}

	dto, err := s.mutate(ctx, id, func(app *application.Application, now time.Time) error {
		app.RotateSecret(secretKey, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &application.CreatedApplicationDTO{
		Application: *dto,
		SecretKey:   secretKey,
		Message:     secretNotice,
	}, nil
}

func (s *ApplicationService) UpdateEmailSettings(ctx context.Context, id kernel.ApplicationID, req application.UpdateEmailSettingsRequest) (*application.ApplicationDTO, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(app *application.Application, now time.Time) error {
		settings := req.Settings()
		if settings.SecretAccessKey == "" && app.EmailSettings != nil {
			settings.SecretAccessKey = app.EmailSettings.SecretAccessKey
		}
		app.SetEmailSettings(settings, now)
		return nil
	})
}

func (s *ApplicationService) UpdateOAuthProvider(ctx context.Context, id kernel.ApplicationID, providerName string, req application.UpdateOAuthProviderRequest) (*application.ApplicationDTO, error) {
	provider, ok := iam.ParseOAuthProvider(providerName)
	if !ok {
		return nil, application.ErrInvalidProvider(providerName)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return s.mutate(ctx, id, func(app *application.Application, now time.Time) error {
		if req.Enabled && req.ClientSecret == "" && app.OAuthSettings[provider].ClientSecret == "" {
			return errx.NewValidator().Required("client_secret", "").Err()
		}
		app.SetOAuthProvider(provider, application.OAuthProviderSettings{
			Enabled:      req.Enabled,
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
		}, now)
		return nil
	})
}

// mutate loads, changes, saves, and drops the cached projection
func (s *ApplicationService) mutate(ctx context.Context, id kernel.ApplicationID, change func(*application.Application, time.Time) error) (*application.ApplicationDTO, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := change(app, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, app); err != nil {
		return nil, err
	}
	s.registry.Invalidate(ctx, app)

	dto := app.ToDTO()
	return &dto, nil
}

// uniqueSlug appends -2, -3, ... until the slug is free
func (s *ApplicationService) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := application.Slugify(name)
	for i := 1; i <= maxSlugAttempts; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}

		taken, err := s.repo.ExistsBySlug(ctx, candidate)
		if err != nil {
			return "", errx.Wrap(err, "failed to check slug", errx.TypeInternal)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", application.ErrSlugTaken().WithDetail("slug", base)
}

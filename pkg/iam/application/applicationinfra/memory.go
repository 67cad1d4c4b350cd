package applicationinfra

import (
	"context"
	"sort"
	"sync"

	"github.com/Abraxas-365/tenantauth/pkg/iam/application"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
)

// MemoryApplicationRepository keeps tenants in process. Single-instance deployments and tests.
type MemoryApplicationRepository struct {
	mu   sync.RWMutex
	byID map[kernel.ApplicationID]*application.Application
}

func NewMemoryApplicationRepository() *MemoryApplicationRepository {
	return &MemoryApplicationRepository{byID: make(map[kernel.ApplicationID]*application.Application)}
}

func (r *MemoryApplicationRepository) Save(_ context.Context, app *application.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.byID {
		if id != app.ID && existing.Slug == app.Slug {
			return application.ErrSlugTaken().WithDetail("slug", app.Slug)
		}
	}
	r.byID[app.ID] = clone(app)
	return nil
}

func (r *MemoryApplicationRepository) FindByID(_ context.Context, id kernel.ApplicationID) (*application.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, ok := r.byID[id]
	if !ok {
		return nil, application.ErrNotFound()
	}
	return clone(app), nil
}

func (r *MemoryApplicationRepository) FindByPublicKey(_ context.Context, publicKey string) (*application.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, app := range r.byID {
		if app.PublicKey == publicKey {
			return clone(app), nil
		}
	}
	return nil, application.ErrNotFound()
}

func (r *MemoryApplicationRepository) ExistsBySlug(_ context.Context, slug string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, app := range r.byID {
		if app.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryApplicationRepository) List(_ context.Context, opts kernel.PaginationOptions) ([]*application.Application, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*application.Application, 0, len(r.byID))
	for _, app := range r.byID {
		all = append(all, app)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	opts = opts.Normalize()
	start := min(opts.Offset(), len(all))
	end := min(start+opts.PageSize, len(all))

	page := make([]*application.Application, 0, end-start)
	for _, app := range all[start:end] {
		page = append(page, clone(app))
	}
	return page, len(all), nil
}

func clone(app *application.Application) *application.Application {
	cp := *app
	if app.EmailSettings != nil {
		settings := *app.EmailSettings
		cp.EmailSettings = &settings
	}
	if app.DeactivatedAt != nil {
		at := *app.DeactivatedAt
		cp.DeactivatedAt = &at
	}
	cp.OAuthSettings = make(application.OAuthSettings, len(app.OAuthSettings))
	for provider, settings := range app.OAuthSettings {
		cp.OAuthSettings[provider] = settings
	}
	return &cp
}

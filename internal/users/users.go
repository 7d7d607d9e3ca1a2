// Package users is the admin-only member management: creating band
// members, listing them and editing their profiles.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bandcal/internal/auth"
	appLog "bandcal/internal/log"
	"bandcal/internal/model"
)

// ErrForbidden is returned when the caller is not an admin.
var ErrForbidden = errors.New("permission denied")

// DefaultProfileWait is how long Create waits for the provider-side trigger
// to insert the new user's profile row before patching it.
const DefaultProfileWait = 500 * time.Millisecond

// Repository covers identity registration and the user_profiles table.
type Repository interface {
	Register(ctx context.Context, p auth.SignUpParams) (*model.Identity, error)
	ListProfiles(ctx context.Context) ([]model.Profile, error)
	UpdateProfile(ctx context.Context, id string, u model.ProfileUpdate) (*model.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
}

// Permissions answers whether the caller is an admin. *auth.Store
// satisfies it.
type Permissions interface {
	IsAdmin() bool
}

type Service struct {
	repo  Repository
	perms Permissions
	wait  time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Service)

// WithProfileWait overrides DefaultProfileWait.
func WithProfileWait(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.wait = d
		}
	}
}

func NewService(repo Repository, perms Permissions, opts ...Option) *Service {
	s := &Service{repo: repo, perms: perms, wait: DefaultProfileWait, sleep: sleepCtx}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Create registers a new identity, then writes the role, username and full
// name onto the profile the provider created for it. A failed profile
// patch is logged and the identity is still returned.
func (s *Service) Create(ctx context.Context, p auth.SignUpParams) (*model.Identity, error) {
	if !s.perms.IsAdmin() {
		return nil, fmt.Errorf("create user: %w", ErrForbidden)
	}
	p.Email = strings.TrimSpace(p.Email)
	if p.Email == "" || p.Password == "" || strings.TrimSpace(p.Username) == "" {
		return nil, errors.New("email, password and username are required")
	}
	if p.Role == "" {
		p.Role = model.RoleMember
	}
	if !p.Role.IsValid() {
		return nil, fmt.Errorf("unknown role %q", p.Role)
	}

	id, err := s.repo.Register(ctx, p)
	if err != nil {
		return nil, err
	}

	if err := s.sleep(ctx, s.wait); err != nil {
		return id, err
	}

	role := p.Role
	username := p.Username
	upd := model.ProfileUpdate{Role: &role, Username: &username}
	if p.FullName != "" {
		fn := p.FullName
		upd.FullName = &fn
	}
	if _, err := s.repo.UpdateProfile(ctx, id.ID, upd); err != nil {
		appLog.Error("user created but profile update failed", err, "user_id", id.ID)
	} else {
		appLog.Info("user created", "user_id", id.ID, "role", string(role))
	}
	return id, nil
}

// List returns every profile, newest first.
func (s *Service) List(ctx context.Context) ([]model.Profile, error) {
	if !s.perms.IsAdmin() {
		return nil, fmt.Errorf("list users: %w", ErrForbidden)
	}
	return s.repo.ListProfiles(ctx)
}

func (s *Service) Update(ctx context.Context, id string, u model.ProfileUpdate) (*model.Profile, error) {
	if !s.perms.IsAdmin() {
		return nil, fmt.Errorf("update user: %w", ErrForbidden)
	}
	if u.Role != nil && !u.Role.IsValid() {
		return nil, fmt.Errorf("unknown role %q", *u.Role)
	}
	if u.Username == nil && u.FullName == nil && u.Role == nil {
		return nil, errors.New("no fields to update")
	}
	return s.repo.UpdateProfile(ctx, id, u)
}

// Delete removes the profile row. The identity itself stays with the
// provider.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !s.perms.IsAdmin() {
		return fmt.Errorf("delete user: %w", ErrForbidden)
	}
	if err := s.repo.DeleteProfile(ctx, id); err != nil {
		return err
	}
	appLog.Info("user profile deleted", "user_id", id)
	return nil
}

package accounts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/foamcrew/foamcrew/internal/shared"
	"github.com/foamcrew/foamcrew/internal/warehouse"
)

// Registry is the persistence surface the service needs.
type Registry interface {
	Create(ctx context.Context, acct Account) error
	ByUsername(ctx context.Context, username string) (Account, error)
	ByTenantID(ctx context.Context, tenantID string) (Account, error)
	UpdatePasswordHash(ctx context.Context, username, hash string) error
	UpdateCrewPin(ctx context.Context, tenantID, pin string) error
	InsertTrialLead(ctx context.Context, lead TrialLead) error
}

// Seeder provisions a fresh tenant's settings rows.
type Seeder interface {
	SeedDefaults(ctx context.Context, tenantID string, profile warehouse.CompanyProfile) error
}

// Notifier hands follow-up work to the background queue. May be nil.
type Notifier interface {
	NotifyTrialLead(ctx context.Context, lead TrialLead) error
}

// Service implements signup, login, and credential management.
type Service struct {
	registry Registry
	seeder   Seeder
	tokens   *TokenCodec
	notifier Notifier
	logger   *slog.Logger
	newID    func() string
	newPin   func() string
}

func NewService(registry Registry, seeder Seeder, tokens *TokenCodec, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		seeder:   seeder,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
		newID:    uuid.NewString,
		newPin:   randomPin,
	}
}

// Signup provisions a company: registry row, tenant id, crew PIN, and
// the default settings rows.
func (s *Service) Signup(ctx context.Context, username, password, companyName, email string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" || companyName == "" {
		return Session{}, fmt.Errorf("accounts: %w: username, password and company name are required", shared.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("accounts: hash password: %w", err)
	}
	acct := Account{
		Username:     username,
		PasswordHash: string(hash),
		CompanyName:  companyName,
		TenantID:     s.newID(),
		CrewPin:      s.newPin(),
		Email:        email,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.registry.Create(ctx, acct); err != nil {
		return Session{}, err
	}
	profile := warehouse.CompanyProfile{
		CompanyName:   companyName,
		CrewAccessPin: acct.CrewPin,
		Email:         email,
	}
	if err := s.seeder.SeedDefaults(ctx, acct.TenantID, profile); err != nil {
		return Session{}, err
	}
	s.logger.Info("company registered",
		slog.String("username", username), slog.String("tenant_id", acct.TenantID))
	return s.session(acct, RoleAdmin, true), nil
}

// Login authenticates the admin credential.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	acct, err := s.registry.ByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Session{}, shared.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return Session{}, shared.ErrInvalidCredentials
	}
	return s.session(acct, RoleAdmin, false), nil
}

// CrewLogin authenticates a crew member with the company id and shared
// PIN.
func (s *Service) CrewLogin(ctx context.Context, username, pin string) (Session, error) {
	acct, err := s.registry.ByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Session{}, shared.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if strings.TrimSpace(pin) == "" || strings.TrimSpace(pin) != acct.CrewPin {
		return Session{}, shared.ErrInvalidCredentials
	}
	return s.session(acct, RoleCrew, false), nil
}

// UpdatePassword rotates the admin credential after verifying the
// current one.
func (s *Service) UpdatePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("accounts: %w: new password is required", shared.ErrValidation)
	}
	acct, err := s.registry.ByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(currentPassword)) != nil {
		return shared.ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("accounts: hash password: %w", err)
	}
	return s.registry.UpdatePasswordHash(ctx, acct.Username, string(hash))
}

// PropagateCrewPin pushes a PIN change from the tenant's company profile
// into the registry, keeping crew login in step with office edits.
func (s *Service) PropagateCrewPin(ctx context.Context, tenantID, pin string) error {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return nil
	}
	acct, err := s.registry.ByTenantID(ctx, tenantID)
	if err != nil {
		return err
	}
	if acct.CrewPin == pin {
		return nil
	}
	if err := s.registry.UpdateCrewPin(ctx, tenantID, pin); err != nil {
		return err
	}
	s.logger.Info("crew pin updated", slog.String("tenant_id", tenantID))
	return nil
}

// SubmitTrial records a trial lead and queues the welcome mail.
func (s *Service) SubmitTrial(ctx context.Context, lead TrialLead) error {
	if strings.TrimSpace(lead.Email) == "" {
		return fmt.Errorf("accounts: %w: email is required", shared.ErrValidation)
	}
	if err := s.registry.InsertTrialLead(ctx, lead); err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyTrialLead(ctx, lead); err != nil {
			// The lead is stored; a lost mail is recoverable.
			s.logger.Warn("trial welcome enqueue failed", slog.Any("error", err))
		}
	}
	return nil
}

// Verify resolves a bearer token to the acting identity.
func (s *Service) Verify(ctx context.Context, token string) (shared.Actor, error) {
	claims, ok := s.tokens.Verify(token)
	if !ok {
		return shared.Actor{}, shared.ErrUnauthorized
	}
	acct, err := s.registry.ByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Actor{}, shared.ErrUnauthorized
		}
		return shared.Actor{}, err
	}
	return shared.Actor{TenantID: acct.TenantID, Username: acct.Username, Role: claims.Role}, nil
}

func (s *Service) session(acct Account, role string, includePin bool) Session {
	sess := Session{
		Username:    acct.Username,
		CompanyName: acct.CompanyName,
		TenantID:    acct.TenantID,
		Role:        role,
		Token:       s.tokens.Issue(acct.Username, role),
	}
	if includePin {
		sess.CrewPin = acct.CrewPin
	}
	return sess
}

func randomPin() string {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("%04d", n.Int64()+1000)
}

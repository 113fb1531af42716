package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bidsphere/bidsphere/internal/domain"
)

// UserService manages user profiles and their wallet bindings.
type UserService struct {
	profiles domain.ProfileStore
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewUserService creates a UserService.
func NewUserService(profiles domain.ProfileStore, audit domain.AuditStore, logger *slog.Logger) *UserService {
	return &UserService{
		profiles: profiles,
		audit:    audit,
		logger:   logger.With(slog.String("component", "user_service")),
	}
}

// Register creates a new profile. The wallet address is optional at
// registration; it can be bound later through SetWallet.
func (s *UserService) Register(ctx context.Context, name, email, walletAddress string) (domain.UserProfile, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return domain.UserProfile{}, fmt.Errorf("service: register: name and email are required")
	}

	if _, err := s.profiles.GetByEmail(ctx, email); err == nil {
		return domain.UserProfile{}, fmt.Errorf("service: register %s: %w", email, domain.ErrAlreadyExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.UserProfile{}, fmt.Errorf("service: register: %w", err)
	}

	profile := domain.UserProfile{
		ID:            uuid.NewString(),
		Name:          name,
		Email:         email,
		WalletAddress: walletAddress,
	}
	if err := s.profiles.Save(ctx, profile); err != nil {
		return domain.UserProfile{}, fmt.Errorf("service: register: %w", err)
	}

	s.auditLog(ctx, "user.registered", map[string]any{
		"user_id": profile.ID,
		"email":   profile.Email,
	})
	return profile, nil
}

// Get returns a profile by ID.
func (s *UserService) Get(ctx context.Context, id string) (domain.UserProfile, error) {
	profile, err := s.profiles.Get(ctx, id)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("service: get user: %w", err)
	}
	return profile, nil
}

// SetWallet binds a wallet address to a profile. A profile that already
// carries a different wallet is never silently overwritten.
func (s *UserService) SetWallet(ctx context.Context, userID, walletAddress string) (domain.UserProfile, error) {
	if walletAddress == "" {
		return domain.UserProfile{}, fmt.Errorf("service: set wallet: address is required")
	}

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("service: set wallet: %w", err)
	}

	if profile.HasWallet() && !profile.WalletMatches(walletAddress) {
		return domain.UserProfile{}, fmt.Errorf(
			"service: set wallet: profile %s already bound to %s: %w",
			userID, domain.TruncateAddress(profile.WalletAddress), domain.ErrWalletMismatch,
		)
	}

	profile.WalletAddress = walletAddress
	if err := s.profiles.Save(ctx, profile); err != nil {
		return domain.UserProfile{}, fmt.Errorf("service: set wallet: %w", err)
	}

	s.auditLog(ctx, "user.wallet_bound", map[string]any{
		"user_id": userID,
		"wallet":  domain.TruncateAddress(walletAddress),
	})
	return profile, nil
}

func (s *UserService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

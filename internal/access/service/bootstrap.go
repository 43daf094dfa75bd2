package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/domain"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
	"github.com/aussiebroadwan/ledgerdrop/pkg/cryptox"
	"github.com/aussiebroadwan/ledgerdrop/pkg/idx"
	"github.com/aussiebroadwan/ledgerdrop/pkg/slogx"
)

type BootstrapData struct {
	FirmName         string
	AdminEmail       string
	AdminDisplayName string
	AdminPassword    string
}

type BootstrapResult struct {
	FirmID string
	UserID string
}

// BootstrapService creates the first firm and its administrator. It only
// works while there are no users, and only with the configured token.
type BootstrapService struct {
	Store  store.Store
	Token  string
	Hasher *cryptox.PasswordHasher
	Now    func() time.Time
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Store.Users().IsEmpty(ctx)
	return !empty, err
}

func (s *BootstrapService) Bootstrap(ctx context.Context, token string, req BootstrapData) (BootstrapResult, error) {
	l := slogx.FromContext(ctx)

	// 1. Check the token
	if s.Token == "" {
		return BootstrapResult{}, ErrBootstrapDisabled
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		l.Warn("unauthorized bootstrap attempt")
		return BootstrapResult{}, ErrBootstrapUnauthorized
	}

	// 2. Check if already bootstrapped
	bootstrapped, err := s.IsBootstrapped(ctx)
	if err != nil {
		return BootstrapResult{}, err
	}
	if bootstrapped {
		l.Warn("attempted bootstrap on already-bootstrapped system")
		return BootstrapResult{}, ErrBootstrapAlready
	}

	// 3. Validate input
	firmName := strings.TrimSpace(req.FirmName)
	displayName := strings.TrimSpace(req.AdminDisplayName)
	if firmName == "" || displayName == "" {
		return BootstrapResult{}, fmt.Errorf("%w: firm name and admin name are required", ErrInvalidInput)
	}
	email, err := normalizeEmail(req.AdminEmail)
	if err != nil {
		return BootstrapResult{}, err
	}
	if err := ValidatePassword(req.AdminPassword); err != nil {
		return BootstrapResult{}, err
	}

	hash, err := s.Hasher.Hash(req.AdminPassword)
	if err != nil {
		l.Error("failed to hash admin password", slog.Any("error", err))
		return BootstrapResult{}, err
	}

	// 4. Firm, admin and membership in one transaction
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	res := BootstrapResult{FirmID: idx.New().String(), UserID: idx.New().String()}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		// Re-check inside the transaction so two racing requests cannot both succeed.
		if empty, err := tx.Users().IsEmpty(ctx); err != nil {
			return err
		} else if !empty {
			return ErrBootstrapAlready
		}
		if err := tx.Firms().CreateFirm(ctx, domain.Firm{ID: res.FirmID, Name: firmName, CreatedAt: now}); err != nil {
			return fmt.Errorf("create firm: %w", err)
		}
		if err := tx.Users().CreateUser(ctx, domain.User{
			ID:           res.UserID,
			Email:        email,
			DisplayName:  displayName,
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}); err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		return tx.Memberships().CreateMembership(ctx, domain.Membership{
			FirmID:    res.FirmID,
			UserID:    res.UserID,
			Role:      domain.RoleFirmAdmin,
			CreatedAt: now,
		})
	})
	if err != nil {
		l.Error("bootstrap failed", slog.Any("error", err))
		return BootstrapResult{}, err
	}

	l.Info("system bootstrapped",
		slog.String("firm_id", res.FirmID),
		slog.String("admin_user_id", res.UserID),
	)
	return res, nil
}

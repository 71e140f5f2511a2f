package v1

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

// CodeLength is the number of digits in a verification code.
const CodeLength = 4

// VerificationConfig holds the verification policy.
type VerificationConfig struct {
	CodeTTL        time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
	// HashCost is the bcrypt cost; zero means bcrypt.DefaultCost.
	HashCost int
}

// VerificationService sends one-time email codes and checks them.
// Only bcrypt hashes of codes are stored.
type VerificationService struct {
	codes  domain.CodeStore
	sender domain.CodeSender
	cfg    VerificationConfig
	logger *zap.Logger
}

func NewVerificationService(codes domain.CodeStore, sender domain.CodeSender, cfg VerificationConfig, logger *zap.Logger) *VerificationService {
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	return &VerificationService{codes: codes, sender: sender, cfg: cfg, logger: logger}
}

// Send issues a new code to email unless the resend cooldown is running.
func (v *VerificationService) Send(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return fmt.Errorf("send code to %q: %w", email, domain.ErrInvalidEmail)
	}

	ok, remaining, err := v.codes.AcquireCooldown(ctx, email, v.cfg.ResendCooldown)
	if err != nil {
		return fmt.Errorf("send code: %w", err)
	}
	if !ok {
		return &domain.CooldownError{Remaining: remaining}
	}

	if err := v.issue(ctx, email); err != nil {
		if relErr := v.codes.ReleaseCooldown(ctx, email); relErr != nil {
			v.logger.Warn("Failed to release verification cooldown", zap.Error(relErr))
		}
		return err
	}

	verificationCodesSent.WithLabelValues("sent").Inc()
	v.logger.Info("Verification code sent", zap.Duration("ttl", v.cfg.CodeTTL))
	return nil
}

// issue stores a fresh code for email and delivers it. The stored code is
// dropped again when delivery fails.
func (v *VerificationService) issue(ctx context.Context, email string) error {
	code, err := randomCode(CodeLength)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), v.cfg.HashCost)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}
	if err := v.codes.SaveCode(ctx, email, string(hash), v.cfg.CodeTTL); err != nil {
		return fmt.Errorf("send code: %w", err)
	}

	if err := v.sender.SendCode(ctx, email, code, v.cfg.CodeTTL); err != nil {
		_ = v.codes.DeleteCode(ctx, email)
		return fmt.Errorf("deliver code: %w", err)
	}
	return nil
}

// Verify checks code against the live code for email. The code is consumed
// on success and locked after MaxAttempts failures.
func (v *VerificationService) Verify(ctx context.Context, email, code string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	code = strings.TrimSpace(code)
	if !isDigits(code, CodeLength) {
		return domain.ErrInvalidCode
	}

	hash, err := v.codes.GetCode(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrCodeExpired) {
			return err
		}
		return fmt.Errorf("verify code: %w", err)
	}

	attempts, err := v.codes.IncrementAttempts(ctx, email, v.cfg.CodeTTL)
	if err != nil {
		return fmt.Errorf("verify code: %w", err)
	}
	if attempts > int64(v.cfg.MaxAttempts) {
		_ = v.codes.DeleteCode(ctx, email)
		verificationCodesSent.WithLabelValues("locked").Inc()
		return domain.ErrTooManyAttempts
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
		return domain.ErrInvalidCode
	}

	if err := v.codes.DeleteCode(ctx, email); err != nil {
		v.logger.Warn("Failed to delete used verification code", zap.Error(err))
	}
	verificationCodesSent.WithLabelValues("verified").Inc()
	return nil
}

func randomCode(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Package user holds account business logic: registration, login, profile
// reads and the manual activity endpoint.
package user

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/medscan/constants"
	"github.com/joseph-ayodele/medscan/internal/common"
	"github.com/joseph-ayodele/medscan/internal/entity"
	"github.com/joseph-ayodele/medscan/internal/ledger"
	"github.com/joseph-ayodele/medscan/internal/repository"
)

// Service handles user business logic.
type Service struct {
	users      repository.UserRepository
	activities repository.ActivityRepository
	ledger     ledger.Recorder
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Service)

// WithClock overrides the clock used to derive ages.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new user service.
func NewService(users repository.UserRepository, activities repository.ActivityRepository, rec ledger.Recorder, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		users:      users,
		activities: activities,
		ledger:     rec,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HealthRecords accepts either a single string or an array of strings on the wire.
type HealthRecords []string

func (h *HealthRecords) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if strings.TrimSpace(one) == "" {
			*h = HealthRecords{}
		} else {
			*h = HealthRecords{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.New("healthRecords must be a string or an array of strings")
	}
	*h = HealthRecords(many)
	return nil
}

// RegisterRequest represents registration parameters.
type RegisterRequest struct {
	Email         string        `json:"email"`
	Name          string        `json:"name"`
	DOB           string        `json:"dob"`
	HealthRecords HealthRecords `json:"healthRecords"`
}

// Register creates a user. Every field is required, including at least one
// non-blank health record; dob must be YYYY-MM-DD.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*entity.User, error) {
	email := normalizeEmail(req.Email)
	records := compact(req.HealthRecords)

	v := common.NewValidator()
	v.Field("email", email, common.Required, common.MaxLength(255), common.Email)
	v.Field("name", req.Name, common.Required, common.MaxLength(255))
	v.Field("dob", req.DOB, common.Required, common.DateYMD)
	if len(records) == 0 {
		v.Field("healthRecords", nil, common.Required)
	}
	if err := common.ValidateAndReturnError(v); err != nil {
		s.logger.Warn("user.register.invalid", "email", email, "error", err)
		return nil, err
	}

	dob, _ := time.Parse(common.DateLayout, strings.TrimSpace(req.DOB))
	u := &entity.User{
		Email:         email,
		Name:          strings.TrimSpace(req.Name),
		DOB:           dob,
		Age:           entity.AgeAt(dob, s.now()),
		HealthRecords: records,
	}
	if err := s.users.Create(ctx, u); err != nil {
		s.logger.Warn("user.register.failed", "email", email, "error", err)
		return nil, err
	}

	s.logger.Info("user.registered", "email", email, "age", u.Age)
	return u, nil
}

// Login looks up an existing user by email.
func (s *Service) Login(ctx context.Context, email string) (*entity.User, error) {
	email = normalizeEmail(email)
	v := common.NewValidator()
	v.Field("email", email, common.Required)
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Warn("user.login.failed", "email", email, "error", err)
		return nil, err
	}
	s.logger.Info("user.login", "email", email)
	return u, nil
}

// Profile returns the user with counters and full activity history, newest first.
func (s *Service) Profile(ctx context.Context, email string) (*entity.Profile, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	acts, err := s.activities.ListByUser(ctx, u.Email)
	if err != nil {
		return nil, err
	}
	return &entity.Profile{User: *u, Activities: acts}, nil
}

// Activities returns the user's history, newest first.
func (s *Service) Activities(ctx context.Context, email string) ([]entity.Activity, error) {
	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		return nil, err
	}
	return s.activities.ListByUser(ctx, email)
}

// RecordActivity commits a client-reported action through the ledger.
func (s *Service) RecordActivity(ctx context.Context, email, activityType string) (entity.Counters, error) {
	kind, ok := constants.ParseActivityType(activityType)
	if !ok {
		v := common.NewValidator()
		v.Field("activityType", activityType, common.Required, common.OneOf(constants.ActivityTypes...))
		if err := common.ValidateAndReturnError(v); err != nil {
			s.logger.Warn("user.activity.invalid", "email", email, "error", err)
			return entity.Counters{}, err
		}
	}
	return s.ledger.RecordAction(ctx, email, kind)
}

// Seed account created on an empty database.
const (
	AdminEmail  = "admin@example.com"
	adminName   = "Admin"
	adminDOB    = "1990-01-01"
	adminAge    = 35
	adminRecord = "Initial health record"
)

// SeedAdmin inserts the admin account when the users table is empty. It
// reports whether a row was written.
func (s *Service) SeedAdmin(ctx context.Context) (bool, error) {
	n, err := s.users.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.logger.Info("user.seed.skipped", "users", n)
		return false, nil
	}
	dob, _ := time.Parse(common.DateLayout, adminDOB)
	err = s.users.Create(ctx, &entity.User{
		Email:         AdminEmail,
		Name:          adminName,
		DOB:           dob,
		Age:           adminAge,
		HealthRecords: []string{adminRecord},
	})
	if err != nil {
		return false, err
	}
	s.logger.Info("user.seed.created", "email", AdminEmail)
	return true, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

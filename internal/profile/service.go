package profile

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"youapp/internal/auth"
	"youapp/internal/domain"
	"youapp/internal/logging"
	"youapp/internal/repository"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("profile: invalid credentials")
	ErrUserExists         = errors.New("profile: user already exists")
	ErrNotFound           = errors.New("profile: user not found")
	ErrInvalidInput       = errors.New("profile: invalid input")
	ErrUnsupportedAvatar  = errors.New("profile: avatar must be an image")
	ErrAvatarTooLarge     = errors.New("profile: avatar too large")
)

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Update is a partial profile change; nil fields are left as they are.
type Update struct {
	DisplayName *string `json:"displayName" validate:"omitempty,max=64"`
	Gender      *string `json:"gender" validate:"omitempty,max=32"`
	Birthday    *string `json:"birthday"`
	Height      *string `json:"height" validate:"omitempty,max=16"`
	Weight      *string `json:"weight" validate:"omitempty,max=16"`
}

type TokenIssuer interface {
	Issue(id, email, username string) (string, error)
}

type Service struct {
	users     repository.UserRepository
	tokens    TokenIssuer
	validate  *validator.Validate
	uploadDir string
	maxAvatar int64
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(users repository.UserRepository, tokens TokenIssuer, uploadDir string, maxAvatar int64, logger *slog.Logger) *Service {
	return &Service{
		users:     users,
		tokens:    tokens,
		validate:  validator.New(),
		uploadDir: uploadDir,
		maxAvatar: maxAvatar,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return domain.User{}, invalid(err)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, err
	}
	user := domain.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(in.Email),
		Username:     in.Username,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	logging.For(ctx, s.logger, "profile", "register", "user_id", user.ID).Info("user registered")
	return user, nil
}

// Login checks credentials and returns a signed access token. Unknown email
// and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("failed to load user: %w", err)
	}
	ok, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return "", ErrInvalidCredentials
	}
	return s.tokens.Issue(user.ID.String(), user.Email, user.Username)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.User, error) {
	user, err := s.users.GetUser(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// Update applies a partial change. A birthday recomputes zodiac and horoscope.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Update) (domain.User, error) {
	if err := s.validate.Struct(in); err != nil {
		return domain.User{}, invalid(err)
	}
	var birthday, zodiac string
	if in.Birthday != nil && *in.Birthday != "" {
		day, month, _, ok := ParseBirthday(*in.Birthday)
		if !ok {
			return domain.User{}, fmt.Errorf("%w: birthday must be DD/MM/YYYY", ErrInvalidInput)
		}
		birthday = strings.TrimSpace(*in.Birthday)
		zodiac = Zodiac(month, day)
	}

	// Merged against the stored profile inside the write transaction.
	updated, err := s.users.UpdateProfile(ctx, id, func(p *domain.Profile) error {
		assign(&p.DisplayName, in.DisplayName)
		assign(&p.Gender, in.Gender)
		assign(&p.Height, in.Height)
		assign(&p.Weight, in.Weight)
		if birthday != "" {
			p.Birthday = birthday
			p.Zodiac = zodiac
			p.Horoscope = DailyHoroscope
		}
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to update profile: %w", err)
	}
	return updated, nil
}

// SaveAvatar stores an uploaded image under the upload directory and records
// its file name on the profile. It returns the stored file name.
func (s *Service) SaveAvatar(ctx context.Context, id uuid.UUID, r io.Reader) (string, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxAvatar+1))
	if err != nil {
		return "", fmt.Errorf("failed to read avatar: %w", err)
	}
	if int64(len(data)) > s.maxAvatar {
		return "", ErrAvatarTooLarge
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", ErrUnsupportedAvatar
	}

	name, err := s.avatarName(mtype.Extension())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	if err := writeFile(filepath.Join(s.uploadDir, name), data); err != nil {
		return "", err
	}

	var previous string
	_, err = s.users.UpdateProfile(ctx, id, func(p *domain.Profile) error {
		previous = p.Avatar
		p.Avatar = name
		return nil
	})
	if err != nil {
		_ = os.Remove(filepath.Join(s.uploadDir, name))
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to update profile: %w", err)
	}
	if previous != "" {
		if err := os.Remove(filepath.Join(s.uploadDir, previous)); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.For(ctx, s.logger, "profile", "avatar").Warn("failed to remove previous avatar", "file", previous, "error", err)
		}
	}
	logging.For(ctx, s.logger, "profile", "avatar", "user_id", id).Info("avatar stored", "file", name, "mime", mtype.String())
	return name, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *Service) avatarName(ext string) (string, error) {
	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to name avatar: %w", err)
	}
	return fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), hex.EncodeToString(suffix), ext), nil
}

func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create avatar file: %w", err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write avatar file: %w", err)
	}
	return f.Close()
}

func assign(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func invalid(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, ", "))
}

package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"phone-auth/internal/data/entity"
	"phone-auth/internal/data/repository"
	"phone-auth/internal/dto/request"
	"phone-auth/internal/dto/response"
	"phone-auth/pkg/utils"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AvatarStore is the blob store avatars are written to.
type AvatarStore interface {
	Save(ctx context.Context, key string, r io.Reader) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// avatar types we accept, keyed by sniffed MIME type
var avatarExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type UserService interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*response.ProfileResponse, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, req *request.UpdateProfileRequest) (*response.ProfileResponse, error)
	UploadAvatar(ctx context.Context, userID uuid.UUID, file io.Reader) (*response.AvatarResponse, error)
	DeleteAvatar(ctx context.Context, userID uuid.UUID) error
}

type userService struct {
	repo     *repository.Repository
	avatars  AvatarStore
	maxBytes int64
	now      func() time.Time
	log      *zap.Logger
}

func NewUserService(repo *repository.Repository, avatars AvatarStore, config *utils.Config, log *zap.Logger) UserService {
	maxBytes := config.Avatar.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 5 * 1024 * 1024
	}
	return &userService{
		repo:     repo,
		avatars:  avatars,
		maxBytes: maxBytes,
		now:      time.Now,
		log:      log.With(zap.String("service", "user")),
	}
}

func (us *userService) GetProfile(ctx context.Context, userID uuid.UUID) (*response.ProfileResponse, error) {
	user, err := us.repo.User.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %w", ErrNotFound)
	}

	profile, err := us.repo.Profile.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return us.buildProfile(ctx, user, profile)
}

func (us *userService) UpdateProfile(ctx context.Context, userID uuid.UUID, req *request.UpdateProfileRequest) (*response.ProfileResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		us.log.Warn("Update profile validation failed", zap.Any("errors", errs))
		return nil, fmt.Errorf("%w: %s", ErrValidation, utils.FormatValidationErrors(errs))
	}

	user, err := us.repo.User.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %w", ErrNotFound)
	}

	profile, err := us.repo.Profile.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if req.Nickname != nil {
		profile.Nickname = *req.Nickname
	}
	if req.Gender != nil {
		profile.Gender = *req.Gender
	}
	if req.Age != nil {
		profile.Age = *req.Age
	}
	if req.Degree != nil {
		profile.Degree = *req.Degree
	}
	if req.Motivation1 != nil {
		profile.Motivation1 = req.Motivation1
	}
	if req.Motivation2 != nil {
		profile.Motivation2 = req.Motivation2
	}
	if req.Motivation3 != nil {
		profile.Motivation3 = req.Motivation3
	}

	if err := us.repo.Profile.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	us.log.Info("Profile updated", zap.String("user_id", userID.String()))
	return us.buildProfile(ctx, user, profile)
}

func (us *userService) UploadAvatar(ctx context.Context, userID uuid.UUID, file io.Reader) (*response.AvatarResponse, error) {
	data, err := io.ReadAll(io.LimitReader(file, us.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > us.maxBytes {
		return nil, fmt.Errorf("%w: limit is %d MB", ErrFileTooLarge, us.maxBytes/(1024*1024))
	}

	mtype := mimetype.Detect(data)
	ext, ok := avatarExtensions[mtype.String()]
	if !ok {
		us.log.Warn("Rejected avatar type", zap.String("user_id", userID.String()), zap.String("mime", mtype.String()))
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mtype.String())
	}

	profile, err := us.repo.Profile.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	now := us.now().UTC()
	key := path.Join("avatars", now.Format("2006/01/02"), uuid.NewString()+ext)

	if err := us.avatars.Save(ctx, key, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to store avatar: %w", err)
	}

	url := us.avatars.URL(key)
	if err := us.repo.Profile.UpdateAvatar(ctx, userID, key, url, now); err != nil {
		if delErr := us.avatars.Delete(ctx, key); delErr != nil {
			us.log.Warn("Failed to remove orphaned avatar", zap.Error(delErr), zap.String("key", key))
		}
		return nil, fmt.Errorf("failed to save avatar: %w", err)
	}

	if profile.AvatarKey != nil && *profile.AvatarKey != key {
		if err := us.avatars.Delete(ctx, *profile.AvatarKey); err != nil {
			us.log.Warn("Failed to remove previous avatar", zap.Error(err), zap.String("key", *profile.AvatarKey))
		}
	}

	us.log.Info("Avatar uploaded",
		zap.String("user_id", userID.String()),
		zap.String("key", key),
		zap.Int("bytes", len(data)))

	return &response.AvatarResponse{AvatarURL: url, AvatarUploadedAt: now}, nil
}

// DeleteAvatar succeeds when there is nothing to delete.
func (us *userService) DeleteAvatar(ctx context.Context, userID uuid.UUID) error {
	profile, err := us.repo.Profile.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get profile: %w", err)
	}
	if profile == nil || profile.AvatarKey == nil {
		return nil
	}

	if err := us.repo.Profile.ClearAvatar(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear avatar: %w", err)
	}

	if err := us.avatars.Delete(ctx, *profile.AvatarKey); err != nil {
		us.log.Warn("Failed to remove avatar blob", zap.Error(err), zap.String("key", *profile.AvatarKey))
	}

	us.log.Info("Avatar deleted", zap.String("user_id", userID.String()))
	return nil
}

func (us *userService) buildProfile(ctx context.Context, user *entity.User, profile *entity.UserProfile) (*response.ProfileResponse, error) {
	phone, err := us.repo.PhoneVerification.FindByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get phone state: %w", err)
	}

	resp := response.ProfileToResponse(user, phone, profile)
	return &resp, nil
}

package adaptor

import (
	"encoding/json"
	"errors"
	"net/http"

	"phone-auth/internal/dto/request"
	"phone-auth/internal/usecase"
	"phone-auth/pkg/utils"

	"go.uber.org/zap"
)

// multipart overhead allowed on top of the avatar itself
const avatarFormSlack = 64 * 1024

type UserHandler struct {
	service        usecase.UserService
	maxAvatarBytes int64
	log            *zap.Logger
}

func NewUserHandler(service usecase.UserService, maxAvatarBytes int64, log *zap.Logger) *UserHandler {
	if maxAvatarBytes <= 0 {
		maxAvatarBytes = 5 * 1024 * 1024
	}
	return &UserHandler{
		service:        service,
		maxAvatarBytes: maxAvatarBytes,
		log:            log,
	}
}

// GetProfile handles GET /api/user/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(h.log, w, err, "get profile")
		return
	}

	utils.ResponseSuccess(w, "Profile retrieved successfully", profile)
}

// UpdateProfile handles PATCH /api/user/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	profile, err := h.service.UpdateProfile(r.Context(), userID, &req)
	if err != nil {
		handleServiceError(h.log, w, err, "update profile")
		return
	}

	utils.ResponseSuccess(w, "Profile updated successfully", profile)
}

// UploadAvatar handles POST /api/user/avatar (multipart field "avatar")
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAvatarBytes+avatarFormSlack)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			handleServiceError(h.log, w, usecase.ErrFileTooLarge, "upload avatar")
			return
		}
		utils.ResponseBadRequest(w, "Validation failed", map[string]string{"avatar": "This field is required"})
		return
	}
	defer file.Close()

	if header.Size > h.maxAvatarBytes {
		handleServiceError(h.log, w, usecase.ErrFileTooLarge, "upload avatar")
		return
	}

	avatar, err := h.service.UploadAvatar(r.Context(), userID, file)
	if err != nil {
		handleServiceError(h.log, w, err, "upload avatar")
		return
	}

	utils.ResponseSuccess(w, "Avatar uploaded successfully", avatar)
}

// DeleteAvatar handles DELETE /api/user/avatar
func (h *UserHandler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.DeleteAvatar(r.Context(), userID); err != nil {
		handleServiceError(h.log, w, err, "delete avatar")
		return
	}

	utils.ResponseSuccess(w, "Avatar deleted successfully", nil)
}

package response

import (
	"time"

	"phone-auth/internal/data/entity"
)

type ProfileResponse struct {
	UserID             string     `json:"user_id"`
	Username           string     `json:"username"`
	Email              string     `json:"email"`
	PhoneNumber        *string    `json:"phone_number"`
	PhoneVerified      bool       `json:"phone_verified"`
	VerificationStatus string     `json:"verification_status"`
	Nickname           string     `json:"nickname"`
	Gender             string     `json:"gender"`
	Age                string     `json:"age"`
	Degree             string     `json:"degree"`
	CounselingRecord   int        `json:"counseling_record"`
	Motivation1        *string    `json:"motivation_1"`
	Motivation2        *string    `json:"motivation_2"`
	Motivation3        *string    `json:"motivation_3"`
	AvatarURL          *string    `json:"avatar_url"`
	AvatarUploadedAt   *time.Time `json:"avatar_uploaded_at"`
}

type AvatarResponse struct {
	AvatarURL        string    `json:"avatar_url"`
	AvatarUploadedAt time.Time `json:"avatar_uploaded_at"`
}

func ProfileToResponse(user *entity.User, phone *entity.PhoneVerification, profile *entity.UserProfile) ProfileResponse {
	resp := ProfileResponse{
		UserID:   user.ID.String(),
		Username: user.Username,
		Email:    user.Email,
	}

	if phone != nil {
		resp.PhoneNumber = phone.PhoneNumber
		resp.PhoneVerified = phone.PhoneVerified
		resp.VerificationStatus = string(phone.VerificationStatus)
	}

	if profile != nil {
		resp.Nickname = profile.Nickname
		resp.Gender = profile.Gender
		resp.Age = profile.Age
		resp.Degree = profile.Degree
		resp.CounselingRecord = profile.CounselingRecord
		resp.Motivation1 = profile.Motivation1
		resp.Motivation2 = profile.Motivation2
		resp.Motivation3 = profile.Motivation3
		resp.AvatarURL = profile.AvatarURL
		resp.AvatarUploadedAt = profile.AvatarUploadedAt
	}

	return resp
}

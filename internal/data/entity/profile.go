package entity

import (
	"time"

	"github.com/google/uuid"
)

type UserProfile struct {
	BaseNoDelete
	UserID           uuid.UUID  `db:"user_id"`
	Nickname         string     `db:"nickname"`
	Gender           string     `db:"gender"`
	Age              string     `db:"age"`
	Degree           string     `db:"degree"`
	CounselingRecord int        `db:"counseling_record"`
	Motivation1      *string    `db:"motivation_1"`
	Motivation2      *string    `db:"motivation_2"`
	Motivation3      *string    `db:"motivation_3"`
	AvatarKey        *string    `db:"avatar_key"`
	AvatarURL        *string    `db:"avatar_url"`
	AvatarUploadedAt *time.Time `db:"avatar_uploaded_at"`
}

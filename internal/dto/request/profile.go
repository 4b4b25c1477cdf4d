package request

// UpdateProfileRequest is a partial update; nil fields are left untouched.
type UpdateProfileRequest struct {
	Nickname    *string `json:"nickname,omitempty" validate:"omitempty,max=150"`
	Gender      *string `json:"gender,omitempty" validate:"omitempty,max=1"`
	Age         *string `json:"age,omitempty" validate:"omitempty,max=10"`
	Degree      *string `json:"degree,omitempty" validate:"omitempty,max=20"`
	Motivation1 *string `json:"motivation_1,omitempty" validate:"omitempty,max=100"`
	Motivation2 *string `json:"motivation_2,omitempty" validate:"omitempty,max=100"`
	Motivation3 *string `json:"motivation_3,omitempty" validate:"omitempty,max=100"`
}

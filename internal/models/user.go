package models

// UserProfile is the payload for the local user's profile.
type UserProfile struct {
	ID          UUID   `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Title       string `json:"title,omitempty"`
	Phone       string `json:"phone,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	ModifiedAt  int64  `json:"modified_at"`
}

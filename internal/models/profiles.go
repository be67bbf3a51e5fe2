package models

// Profile is the public part of a user account. Accounts are owned by the
// identity provider; the service only mirrors what tokens tell it.
type Profile struct {
	UserID      string `json:"id" db:"user_id"`
	Username    string `json:"username" db:"username"`
	DisplayName string `json:"name" db:"display_name"`
	AvatarURL   string `json:"image" db:"avatar_url"`
}

// Unknown is the profile shown for a user the service has no mirror of yet.
func Unknown(userId string) Profile {
	return Profile{UserID: userId}
}

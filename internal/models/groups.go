package models

import "time"

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

type Group struct {
	GroupID     string    `json:"id" db:"group_id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description" db:"description"`
	ImageRef    *string   `json:"image" db:"image_ref"`
	CreatorID   string    `json:"creator_id" db:"creator_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type GroupCreate struct {
	Name        string
	Description string
	ImageRef    string
}

type GroupMember struct {
	GroupID  string    `json:"group_id" db:"group_id"`
	UserID   string    `json:"user_id" db:"user_id"`
	Role     Role      `json:"role" db:"role"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
	User     *Profile  `json:"user,omitempty" db:"-"`
}

type GroupSummary struct {
	Group
	MemberCount int  `json:"member_count" db:"member_count"`
	IsJoined    bool `json:"is_joined" db:"is_joined"`
}

type GroupDetails struct {
	Group
	Creator  Profile       `json:"created_by"`
	Members  []GroupMember `json:"members"`
	IsJoined bool          `json:"is_joined"`
	IsAdmin  bool          `json:"is_admin"`
}

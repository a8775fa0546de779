package dto

type CreateUserRequest struct {
	Name string `json:"name"`
}

type CreateRoomRequest struct {
	Name      string `json:"name"`
	IsPublic  bool   `json:"isPublic"`
	CreatorID string `json:"creatorId"`
}

type MuteRequest struct {
	AdminUserID  string `json:"adminUserId"`
	TargetUserID string `json:"targetUserId"`
}

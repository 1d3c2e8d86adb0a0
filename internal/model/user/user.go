package user

// User binds a chat-platform account to its stored model credential.
type User struct {
	ID         int64  `json:"id"`
	PlatformID int64  `json:"platformId"`
	Credential string `json:"-"`
}

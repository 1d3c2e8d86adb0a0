package profile

// Profile is a named prompt fragment owned by one user. Characters
// describe who the model plays, personas describe who the user plays;
// the two are structurally identical.
type Profile struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

package profile

// CacheKey identifies the current user's profile in the query cache.
const CacheKey = "profile"

// Profile is the backend-owned user record. The client never mutates it.
type Profile struct {
	ID               int64   `json:"id" validate:"gt=0"`
	Auth0ID          string  `json:"auth0_id"`
	GotrueID         string  `json:"gotrue_id"`
	PrimaryEmail     string  `json:"primary_email"`
	Username         string  `json:"username"`
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	Mobile           *string `json:"mobile"`
	IsAlphaUser      bool    `json:"is_alpha_user"`
	FreeProjectLimit int     `json:"free_project_limit"`
}

// DisplayName prefers the person's name and falls back to the username.
func (p Profile) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.LastName != "":
		return p.LastName
	default:
		return p.Username
	}
}

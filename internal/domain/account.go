package domain

// Session is the logged-in state held by the presentation layer.
type Session struct {
	UserID   string `json:"userId"`
	LoggedIn bool   `json:"loggedIn"`
}

// Logout returns the zero session.
func (s Session) Logout() Session {
	return Session{}
}

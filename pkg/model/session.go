package model

// Session is the per-connection state. It is owned by exactly one
// connection handler and is never shared between goroutines.
type Session struct {
	UserID    int64    // 0 while anonymous
	Profile   *Profile // cached copy, refreshed after profile mutations
	Connected bool     // cleared by the first teardown; later teardowns are no-ops
}

// NewSession returns an anonymous, connected session.
func NewSession() *Session {
	return &Session{Connected: true}
}

// Authenticated reports whether a LOGIN has succeeded on this session.
func (s *Session) Authenticated() bool {
	return s.UserID != 0
}

// Role returns the cached role, or RoleStudent when anonymous.
func (s *Session) Role() Role {
	if s.Profile == nil {
		return RoleStudent
	}
	return s.Profile.Role
}

// Bind populates the session after a successful login.
func (s *Session) Bind(p Profile) {
	s.UserID = p.UserID
	s.Profile = &p
}

// Refresh replaces the cached profile if it belongs to the bound user.
func (s *Session) Refresh(p Profile) {
	if s.UserID != 0 && p.UserID == s.UserID {
		s.Profile = &p
	}
}

// Clear drops authentication state but keeps the session connected.
func (s *Session) Clear() {
	s.UserID = 0
	s.Profile = nil
}

package salesforce

// Session is the live bearer credential for an org. A successful exchange
// creates one, a renewal replaces it, and only Clear empties it.
type Session struct {
	AccessToken  string `json:"access_token"`  //nolint:gosec // field name, not a credential
	InstanceURL  string `json:"instance_url"`
	RefreshToken string `json:"refresh_token,omitempty"` //nolint:gosec // field name, not a credential

	// Informational fields from the identity response.
	ID        string `json:"id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	IssuedAt  string `json:"issued_at,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Valid reports whether both the access token and instance URL are present.
// It is a local check: the service may still reject the token.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && s.InstanceURL != ""
}

// Clear empties every field.
func (s *Session) Clear() {
	*s = Session{}
}

// Clone returns a copy that can be mutated without affecting s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	c := *s

	return &c
}

// IsValid is the nil-safe package form of Session.Valid.
func IsValid(s *Session) bool {
	return s.Valid()
}

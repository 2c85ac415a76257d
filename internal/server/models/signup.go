package models

// Signup is the input for account creation: either a LocalSignup or an
// ExternalSignup.
type Signup interface {
	signup()
}

// LocalSignup registers an account that logs in with a password.
type LocalSignup struct {
	Email    string
	Name     string
	Password string
}

// ExternalSignup registers an account authenticated by an identity provider.
type ExternalSignup struct {
	Email      string
	Name       string
	ExternalID string
}

func (LocalSignup) signup()    {}
func (ExternalSignup) signup() {}

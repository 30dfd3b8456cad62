package notification

// Identity is the tagged union over the two notification shapes sharing one
// storage table. It is resolved once at the boundary where a raw row enters
// the package instead of re-deriving "has userId / has emailOrPhone" checks in
// every method.
type Identity interface {
	isIdentity()
}

// UserIdentity links a notification to a registered user. The user row itself
// is owned by the account subsystem and never touched here.
type UserIdentity struct {
	UserID string
}

func (UserIdentity) isIdentity() {}

// OneOffIdentity addresses a notification to a raw contact. An empty
// EmailOrPhone is a valid one-off identity; absence (NULL) is not. Names
// default to the empty string on read.
type OneOffIdentity struct {
	EmailOrPhone string
	FirstName    string
	LastName     string
}

func (OneOffIdentity) isIdentity() {}

// Classify resolves a raw row's identity. A user id wins when both identity
// columns are populated; a row with neither fails with ErrInvalidNotification.
func Classify(rec Record) (Identity, error) {
	if rec.UserID != nil {
		return UserIdentity{UserID: *rec.UserID}, nil
	}
	if rec.EmailOrPhone != nil {
		return OneOffIdentity{
			EmailOrPhone: *rec.EmailOrPhone,
			FirstName:    stringOrEmpty(rec.FirstName),
			LastName:     stringOrEmpty(rec.LastName),
		}, nil
	}
	return nil, ErrInvalidNotification
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

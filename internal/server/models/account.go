package models

// Account field names shared by the record, the search mirror and the
// notification handlers.
const (
	FieldUID               = "uid"
	FieldEmail             = "email"
	FieldRole              = "role"
	FieldUserID            = "userId"
	FieldDisplayName       = "displayName"
	FieldIsProfileComplete = "isProfileComplete"
	FieldCreatedAt         = "createdAt"
	FieldFCMToken          = "fcmToken"
)

// Account is the result of provisioning: the identity provider id and the
// issued human-facing identifier.
type Account struct {
	UID        string
	UserID     string
	Email      string
	Role       string
	Collection string
}

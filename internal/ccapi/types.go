package ccapi

import "fmt"

// APIError is returned when the resource API answers with a non-success
// status (after the single 401 refresh-and-retry).
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api request failed with status %d: %s", e.Status, e.Body)
}

// ListRequest is the payload for creating a contact list.
type ListRequest struct {
	Name        string `json:"name"`
	Favorite    bool   `json:"favorite"`
	Description string `json:"description,omitempty"`
}

// EmailAddress is the nested address object the create-contact endpoint
// expects.
type EmailAddress struct {
	Address string `json:"address"`
}

// ContactRequest is the payload for creating a contact.
type ContactRequest struct {
	CreateSource    string       `json:"create_source"`
	EmailAddress    EmailAddress `json:"email_address"`
	FirstName       string       `json:"first_name,omitempty"`
	LastName        string       `json:"last_name,omitempty"`
	ListMemberships []string     `json:"list_memberships,omitempty"`
}

// NewContactRequest builds a ContactRequest with the account create source.
func NewContactRequest(email, firstName, lastName string, listIDs []string) ContactRequest {
	return ContactRequest{
		CreateSource:    "Account",
		EmailAddress:    EmailAddress{Address: email},
		FirstName:       firstName,
		LastName:        lastName,
		ListMemberships: listIDs,
	}
}

// UpsertRequest is the payload for the sign_up_form upsert endpoint, which
// takes the email address as a flat string.
type UpsertRequest struct {
	EmailAddress    string   `json:"email_address"`
	FirstName       string   `json:"first_name,omitempty"`
	LastName        string   `json:"last_name,omitempty"`
	ListMemberships []string `json:"list_memberships,omitempty"`
	SMSSubscriber   *bool    `json:"sms_subscriber,omitempty"`
}

package locations

// RegisterLocationRequest creates a new location under the active tenant.
type RegisterLocationRequest struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Region string `json:"region"`
}

func (r RegisterLocationRequest) Validate() error {
	if r.Code == "" {
		return &ValidationError{Field: "code", Message: "cannot be empty"}
	}
	if r.Name == "" {
		return &ValidationError{Field: "name", Message: "cannot be empty"}
	}
	return nil
}

// UpdateLocationRequest rewrites the mutable fields of a location. Nil fields
// are left unchanged.
type UpdateLocationRequest struct {
	Name   *string `json:"name,omitempty"`
	Region *string `json:"region,omitempty"`
}

func (r UpdateLocationRequest) Validate() error {
	if r.Name != nil && *r.Name == "" {
		return &ValidationError{Field: "name", Message: "cannot be empty"}
	}
	if r.Name == nil && r.Region == nil {
		return &ValidationError{Field: "request", Message: "no fields to update"}
	}
	return nil
}

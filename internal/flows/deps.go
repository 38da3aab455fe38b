package flows

// Deps groups flow dependency sets. Root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Signup       SignupDeps
	Login        LoginDeps
	Refresh      RefreshDeps
	Logout       LogoutDeps
	Verification VerificationDeps
}

// AccountRecord is the flow-local account model. The root engine converts
// its store's records into this shape before handing them to flows.
type AccountRecord struct {
	ID           string
	Email        string
	PasswordHash string
	Verified     bool
}

// TokenPairResult is the flow-local token issuance response shape.
type TokenPairResult struct {
	AccessToken  string
	RefreshToken string
}

// EmitAuditFunc forwards one audit event. The metadata closure is only
// invoked when a dispatcher is attached, keeping the disabled path
// allocation-free.
type EmitAuditFunc func(eventType string, success bool, subject, ip string, err error, meta func() map[string]string)

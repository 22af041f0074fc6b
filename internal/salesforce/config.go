package salesforce

import "strings"

// Identity endpoint bases, selected by ServiceConfig.Sandbox.
const (
	ProductionLoginURL = "https://login.salesforce.com"
	SandboxLoginURL    = "https://test.salesforce.com"
)

// DefaultAPIVersion is the REST API version used when none is configured.
const DefaultAPIVersion = "v59.0"

// ServiceConfig holds the credential material and environment selection for
// one Salesforce org. It is never mutated after construction; the current
// session lives in Session.
type ServiceConfig struct {
	ClientID     string
	ClientSecret string

	// Resource-owner password flow.
	Username      string
	Password      string
	SecurityToken string

	// Pre-obtained session.
	AccessToken string
	InstanceURL string

	Sandbox    bool
	LoginURL   string // overrides the Sandbox-derived identity base (My Domain logins)
	APIVersion string
}

// HasToken reports whether a pre-supplied access token and instance URL are
// both present.
func (c ServiceConfig) HasToken() bool {
	return c.AccessToken != "" && c.InstanceURL != ""
}

// HasPasswordCredentials reports whether the password grant can be attempted.
func (c ServiceConfig) HasPasswordCredentials() bool {
	return c.Username != "" && c.Password != "" && c.ClientID != "" && c.ClientSecret != ""
}

// IdentityURL returns the base URL of the identity endpoint.
func (c ServiceConfig) IdentityURL() string {
	if c.LoginURL != "" {
		return strings.TrimRight(c.LoginURL, "/")
	}

	if c.Sandbox {
		return SandboxLoginURL
	}

	return ProductionLoginURL
}

// Version returns the configured API version, "v"-prefixed, or
// DefaultAPIVersion.
func (c ServiceConfig) Version() string {
	if c.APIVersion == "" {
		return DefaultAPIVersion
	}

	if !strings.HasPrefix(c.APIVersion, "v") {
		return "v" + c.APIVersion
	}

	return c.APIVersion
}

// Environment returns "sandbox" or "production" for log and error messages.
func (c ServiceConfig) Environment() string {
	if c.Sandbox {
		return "sandbox"
	}

	return "production"
}

// acceptedCombinations names the two credential sets Connect can work with.
const acceptedCombinations = "set either SALESFORCE_ACCESS_TOKEN + SALESFORCE_INSTANCE_URL, " +
	"or SALESFORCE_USERNAME + SALESFORCE_PASSWORD (with SALESFORCE_CLIENT_ID + SALESFORCE_CLIENT_SECRET)"

// Validate checks that the app identity is present and that at least one
// credential strategy is usable. It performs no network activity.
func (c ServiceConfig) Validate() error {
	var problems []string

	if c.ClientID == "" {
		problems = append(problems, "client ID is required")
	}

	if c.ClientSecret == "" {
		problems = append(problems, "client secret is required")
	}

	hasToken := c.AccessToken != "" && c.InstanceURL != ""
	hasPassword := c.Username != "" && c.Password != ""

	if !hasToken && !hasPassword {
		problems = append(problems, "no usable credentials: "+acceptedCombinations)
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}

	return nil
}

package types

import "time"

const (
	// DefaultAPIEndpoint is the default API base URL
	DefaultAPIEndpoint = "https://api.quickblox.com"

	// DefaultAccountEndpoint marks the account settings (bootstrap) URL
	DefaultAccountEndpoint = "account_settings"

	// DefaultStorageHost is the external binary storage host. Requests to it
	// carry no API identification headers.
	DefaultStorageHost = "s3.amazonaws.com"

	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 30 * time.Second

	// DefaultVersion is the SDK version reported in the QB-SDK header
	DefaultVersion = "1.0.0"

	// DefaultMaxSessionRenewals bounds renewal retries per dispatched request
	DefaultMaxSessionRenewals = 3

	// URLSuffix is appended to API resource paths
	URLSuffix = ".json"

	// DefaultContentType is used when a request names no content type
	DefaultContentType = "application/x-www-form-urlencoded; charset=UTF-8"
)

// Header names
const (
	HeaderOS             = "QB-OS"
	HeaderSDK            = "QB-SDK"
	HeaderToken          = "QB-Token"
	HeaderAccountKey     = "QB-Account-Key"
	HeaderTokenExpiresAt = "qb-token-expirationdate"
	HeaderContentType    = "Content-Type"
)

// SuccessStatuses are the response statuses treated as success
var SuccessStatuses = map[int]bool{
	200: true,
	201: true,
	202: true,
}

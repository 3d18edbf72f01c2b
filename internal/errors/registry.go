package errors

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// Lookup returns the template registered for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}

var registry = map[string]Template{
	// Configuration errors (E100-E119)

	"E100": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "The configuration file could not be parsed.",
	},
	"E101": {
		Category: CategoryConfig,
		Message:  "Missing required configuration",
		Detail:   "A required configuration value is not set.",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Invalid port number",
		Detail:   "The configured port must be between 0 and 65535.",
	},
	"E103": {
		Category: CategoryConfig,
		Message:  "Unknown storage driver",
		Detail:   "The storage driver is not one of memory, sqlite, postgres, redis, s3.",
	},
	"E104": {
		Category: CategoryConfig,
		Message:  "Invalid precache manifest",
		Detail:   "The precache manifest has no version or lists an invalid path.",
	},
	"E105": {
		Category: CategoryConfig,
		Message:  "Invalid environment override",
		Detail:   "An HOMEPAGE_* environment variable could not be parsed.",
	},
	"E106": {
		Category: CategoryConfig,
		Message:  "Invalid origin",
		Detail:   "The origin must be an absolute http or https URL.",
	},

	// Storage errors (E120-E139)

	"E120": {
		Category: CategoryStorage,
		Message:  "Storage unavailable",
		Detail:   "The key-value storage backend could not be opened.",
	},
	"E121": {
		Category: CategoryCache,
		Message:  "Cache storage unavailable",
		Detail:   "The response cache storage could not be opened.",
	},

	// CLI errors (E140-E159)

	"E140": {
		Category: CategoryCLI,
		Message:  "Configuration file not found",
		Detail:   "No homepage.yaml or homepage.json was found in this directory or any parent.",
	},
	"E141": {
		Category: CategoryCLI,
		Message:  "Invalid state patch",
		Detail:   "The state patch is not valid JSON or sets an unknown value.",
	},
	"E142": {
		Category: CategoryCLI,
		Message:  "Install failed",
		Detail:   "Precaching the manifest failed. The previous cache generation keeps serving.",
	},
}

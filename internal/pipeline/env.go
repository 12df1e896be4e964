package pipeline

import "strings"

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

type envLookupFunc func(string) (string, bool)

// DetectEnvironment resolves the deployment environment when no explicit
// --env flag was given. SECGATE_ENV wins, then the usual deployment
// variables, then CI-provider hints; the fallback is development so a
// misconfigured pipeline fails toward the loosest thresholds visibly
// rather than blocking every run.
func DetectEnvironment(lookup envLookupFunc) (string, string) {
	if v := firstEnv(lookup, "SECGATE_ENV"); v != "" {
		return canonicalEnvironment(v), "SECGATE_ENV"
	}
	if v := firstEnv(lookup, "DEPLOY_ENV", "ENVIRONMENT", "APP_ENV", "NODE_ENV"); v != "" {
		return canonicalEnvironment(v), "deploy-env"
	}
	if isTrueEnv(lookup, "GITHUB_ACTIONS") {
		ref := strings.ToLower(firstEnv(lookup, "GITHUB_REF"))
		if strings.HasPrefix(ref, "refs/tags/") {
			return EnvProduction, "github"
		}
		return EnvStaging, "github"
	}
	if isTrueEnv(lookup, "GITLAB_CI") {
		if v := firstEnv(lookup, "CI_ENVIRONMENT_NAME"); v != "" {
			return canonicalEnvironment(v), "gitlab"
		}
		return EnvStaging, "gitlab"
	}
	return EnvDevelopment, "default"
}

func canonicalEnvironment(v string) string {
	n := strings.TrimSpace(strings.ToLower(v))
	switch {
	case strings.Contains(n, "prod"):
		return EnvProduction
	case strings.Contains(n, "stag") || n == "preprod" || n == "uat":
		return EnvStaging
	default:
		return EnvDevelopment
	}
}

func firstEnv(lookup envLookupFunc, keys ...string) string {
	for _, key := range keys {
		if v, ok := lookup(key); ok {
			if t := strings.TrimSpace(v); t != "" {
				return t
			}
		}
	}
	return ""
}

func isTrueEnv(lookup envLookupFunc, key string) bool {
	v, ok := lookup(key)
	if !ok {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

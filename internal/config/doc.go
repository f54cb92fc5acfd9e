// Package config loads the service configuration (assetscore.yaml) and the
// scoring policy file, and watches the policy for changes.
//
// Top-level types:
//   - Config{Server, Scoring, Log}: full service config parsed from YAML
//   - ServerConfig: http_port, auth, store_ttl
//   - AuthConfig: mode (apikey|none), header, key_env; Key() resolves the
//     expected key from the environment
//   - ScoringConfig: policy_path, batch_limit
//   - AlertsConfig: score alert rules (name, condition, severity, cooldown)
//     and webhooks (teams|slack|pagerduty|http, url_env)
//   - LogConfig: level (debug|info|warn|error), format (json|text)
//
// Load(path) reads the YAML file, applies defaults (port 8080, store TTL 15m,
// batch limit 8, info/json logging), resolves a relative policy_path against
// the config file's directory, then validates ranges and enums.
//
// LoadPolicy(path) reads a scoring policy in JSON (.json) or YAML (.yaml,
// .yml). Decay parameter order is kept in both formats. A policy that omits
// events is scored with the legacy threshold table (rules.LegacyRules).
//
// WatchPolicy(ctx, path, onChange) uses fsnotify to detect policy edits and
// calls onChange with the newly parsed policy. The parent directory is
// watched so rename-based atomic saves (vim, VS Code) are picked up.
package config

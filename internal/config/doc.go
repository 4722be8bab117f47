// Package config reads tagflow.toml into a Config.
//
// Load uses the explicit --config path when given and otherwise the first of
// ~/.config/tagflow/config.toml and ./tagflow.toml that exists. Decoding
// starts from Default; "~" is expanded in every path, TAGFLOW_API_TOKEN fills
// an empty token, and Validate runs last.
// Callers should treat the returned Config as read-only.
package config

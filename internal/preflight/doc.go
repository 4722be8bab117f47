// Package preflight provides readiness checks for the directories and
// services tagflow depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failing check. A
//     failing check is reported, not fatal: the inbox may live on storage
//     that mounts later.
//   - The CLI "tagflow deps" command renders the same results next to the
//     binary checks from internal/deps.
package preflight

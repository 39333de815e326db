// Package cli provides the interactive voicescreen command-line client.
//
// It wires configuration, the credential store, the HTTP transport, the
// request dedup cache and the token manager, then runs a REPL over them.
// A background watcher re-evaluates the session state so the prompt shows
// when the access credential has expired or the session has ended.
//
// Commands:
//   - register, login, logout, logoutall
//   - whoami, validate
//   - start, stop, save, history
//   - pending, metrics
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli

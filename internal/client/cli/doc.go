// Package cli provides the interactive GophChat command-line client.
//
// It wires configuration, the device database, the E2EE key vault and the
// API services into a REPL. Typical flow: resume the saved session or
// prompt for credentials, open the realtime stream in the background, then
// execute user commands while live messages are printed as they arrive.
//
// Key features:
//   - Register / Login / Logout, with the session resumed on start
//   - Users list with online state and unread counts
//   - Open a conversation, send encrypted text, send and save images
//   - Connectivity watcher reporting online/offline mode
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher and runREPL for details.
package cli

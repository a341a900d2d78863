// Package google handles Gmail OAuth2 authorization for templatemail.
//
// The OAuth client is read from a Desktop-app credentials.json downloaded
// from the Google Cloud Console. Tokens are kept as JSON in a local file.
//
// By default every authentication deletes the saved token and runs the
// consent flow again (always-reauthorize). When that policy is turned off a
// saved token is reused and refreshed as needed.
//
// The TokenProvider interface lets Gmail clients obtain tokens without
// knowing where they are stored.
package google

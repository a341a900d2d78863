package google

import gmail "google.golang.org/api/gmail/v1"

// GmailScopes are the scopes requested for sending templates:
// sending messages and composing drafts. Nothing is read from the mailbox.
var GmailScopes = []string{
	gmail.GmailSendScope,
	gmail.GmailComposeScope,
}

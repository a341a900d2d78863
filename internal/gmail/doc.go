// Package gmail sends HTML templates through the Gmail API.
//
// Messages are built as multipart/alternative with a plain-text rendering of
// the template first and the HTML itself second, so clients that cannot
// display HTML still show readable text. Messages are sent as the
// authorized user ("me").
//
// Example usage:
//
//	client, err := gmail.NewClient(ctx, tokenSource)
//	if err != nil {
//	    return err
//	}
//
//	id, err := client.SendHTML(ctx, &gmail.EmailMessage{
//	    To:      []string{"recipient@example.com"},
//	    Subject: "Email from welcome.html",
//	    HTML:    "<p>Hello</p>",
//	})
package gmail

package graph

// MailRequest is the body of a Graph sendMail call.
// Field names are capitalized on the wire, as the beta endpoint accepts them.
type MailRequest struct {
	Message         Message `json:"Message"`
	SaveToSentItems bool    `json:"SaveToSentItems"`
}

type Message struct {
	Subject      string      `json:"Subject"`
	Body         ItemBody    `json:"Body"`
	ToRecipients []Recipient `json:"ToRecipients"`
}

type ItemBody struct {
	ContentType string `json:"ContentType"`
	Content     string `json:"Content"`
}

type Recipient struct {
	EmailAddress EmailAddress `json:"EmailAddress"`
}

type EmailAddress struct {
	Address string `json:"Address"`
}

// NewMailRequest builds an HTML message to a single recipient, saved to Sent Items
func NewMailRequest(subject, htmlBody, recipient string) MailRequest {
	return MailRequest{
		Message: Message{
			Subject: subject,
			Body: ItemBody{
				ContentType: "HTML",
				Content:     htmlBody,
			},
			ToRecipients: []Recipient{
				{EmailAddress: EmailAddress{Address: recipient}},
			},
		},
		SaveToSentItems: true,
	}
}

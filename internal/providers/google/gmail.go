package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/tbourn/go-agenda-agent/internal/domain"
)

const gmailUser = "me"

// Mail implements services.MailProvider on the Gmail API.
type Mail struct {
	auth     *Auth
	endpoint string
}

// NewMail returns a Gmail-backed mail provider.
func NewMail(auth *Auth) *Mail { return &Mail{auth: auth} }

// WithEndpoint points the client at a different API root (tests).
func (m *Mail) WithEndpoint(url string) *Mail {
	m.endpoint = url
	return m
}

func (m *Mail) service(ctx context.Context) (*gmail.Service, error) {
	client, err := m.auth.Client(ctx)
	if err != nil {
		return nil, err
	}
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if m.endpoint != "" {
		opts = append(opts, option.WithEndpoint(m.endpoint))
	}
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, classify("gmail client", err)
	}
	return srv, nil
}

// ListUnread returns up to max unread inbox message ids, newest first.
func (m *Mail) ListUnread(ctx context.Context, max int) ([]string, error) {
	srv, err := m.service(ctx)
	if err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 1
	}
	resp, err := srv.Users.Messages.List(gmailUser).Q("is:unread in:inbox").MaxResults(int64(max)).Context(ctx).Do()
	if err != nil {
		return nil, classify("list unread", err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

// Get fetches the From and Subject headers and the snippet of a message.
func (m *Mail) Get(ctx context.Context, id string) (domain.MailMessage, error) {
	srv, err := m.service(ctx)
	if err != nil {
		return domain.MailMessage{}, err
	}
	msg, err := srv.Users.Messages.Get(gmailUser, id).Format("metadata").MetadataHeaders("From", "Subject").Context(ctx).Do()
	if err != nil {
		return domain.MailMessage{}, classify("get message", err)
	}
	out := domain.MailMessage{ID: msg.Id, Snippet: msg.Snippet}
	if msg.Payload != nil {
		out.From = header(msg.Payload.Headers, "From")
		out.Subject = header(msg.Payload.Headers, "Subject")
	}
	return out, nil
}

// Archive removes the INBOX and UNREAD labels.
func (m *Mail) Archive(ctx context.Context, id string) error {
	srv, err := m.service(ctx)
	if err != nil {
		return err
	}
	req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{"INBOX", "UNREAD"}}
	if _, err := srv.Users.Messages.Modify(gmailUser, id, req).Context(ctx).Do(); err != nil {
		return classify("archive", err)
	}
	return nil
}

// SendReply sends a plain-text message.
func (m *Mail) SendReply(ctx context.Context, to, subject, body string) error {
	srv, err := m.service(ctx)
	if err != nil {
		return err
	}
	raw := base64.URLEncoding.EncodeToString(buildMessage(to, subject, body))
	if _, err := srv.Users.Messages.Send(gmailUser, &gmail.Message{Raw: raw}).Context(ctx).Do(); err != nil {
		return classify("send", err)
	}
	return nil
}

// Delete permanently removes a message.
func (m *Mail) Delete(ctx context.Context, id string) error {
	srv, err := m.service(ctx)
	if err != nil {
		return err
	}
	if err := srv.Users.Messages.Delete(gmailUser, id).Context(ctx).Do(); err != nil {
		return classify("delete", err)
	}
	return nil
}

func header(hs []*gmail.MessagePartHeader, name string) string {
	for _, h := range hs {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// buildMessage renders an RFC 5322 message with a Q-encoded subject.
func buildMessage(to, subject, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(body)
	return b.Bytes()
}

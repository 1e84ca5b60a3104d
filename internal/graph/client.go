package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgellow/mailrelay/internal/log"
	"github.com/dgellow/mailrelay/internal/urlutil"
)

const (
	contentTypeODataJSON = "application/json;odata.metadata=minimal;odata.streaming=true"
	errorBodyLimit       = 1024
	defaultTimeout       = 30 * time.Second
)

// MailSendError is returned when Graph answers a sendMail call with anything but 202.
type MailSendError struct {
	StatusCode int
	Reason     string
	// Code is the Graph error code from the response body, if any
	Code string
	// Body is a bounded excerpt of the response
	Body string
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Error renders "<code> - <reason>", the text shown to the user
func (e *MailSendError) Error() string {
	return fmt.Sprintf("%d - %s", e.StatusCode, e.Reason)
}

// Client posts mail through the signed-in user's mailbox
type Client struct {
	httpClient *http.Client
	endpoint   string
}

// NewClient creates a client for resource (e.g. https://graph.microsoft.com) and the sendMail path
func NewClient(resource, sendMailPath string, httpClient *http.Client) (*Client, error) {
	endpoint, err := urlutil.JoinPath(resource, sendMailPath)
	if err != nil {
		return nil, fmt.Errorf("invalid graph endpoint: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{httpClient: httpClient, endpoint: endpoint}, nil
}

// Endpoint returns the sendMail URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// SendMail posts msg with the bearer token. Only 202 Accepted counts as success;
// other statuses return *MailSendError. Transport failures are returned as is.
func (c *Client) SendMail(ctx context.Context, accessToken string, msg MailRequest) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// keep the HTML body readable on the wire
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return fmt.Errorf("encoding mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return fmt.Errorf("creating sendmail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", contentTypeODataJSON)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendmail request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		log.LogDebugWithFields("graph", "Mail accepted", log.ContextFields(ctx, map[string]any{
			"recipients": len(msg.Message.ToRecipients),
		}))
		return nil
	}

	sendErr := &MailSendError{
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
		Body:       readLimited(resp.Body, errorBodyLimit),
	}
	var graphErr errorResponse
	if json.Unmarshal([]byte(sendErr.Body), &graphErr) == nil {
		sendErr.Code = graphErr.Error.Code
	}

	// the body may echo addresses, so only the code is logged
	log.LogWarnWithFields("graph", "Mail rejected", log.ContextFields(ctx, map[string]any{
		"status":     resp.StatusCode,
		"reason":     sendErr.Reason,
		"graph_code": sendErr.Code,
	}))
	return sendErr
}

// reasonPhrase extracts the reason from the status line, e.g. "Bad Request"
func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}

// readLimited reads up to limit bytes and returns them as a string.
// A read failure is described in the result instead of being dropped.
func readLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return string(body)
}

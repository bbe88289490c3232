// Package gmail sends application mail and reads reply threads through
// the Gmail REST API with per-user OAuth credentials.
package gmail

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/config"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	defaultAPIURL   = "https://gmail.googleapis.com/gmail/v1"
)

// Mailer implements domain.Mailer over Gmail. Tokens live in the
// credential repository; an expired access token is refreshed before
// use and a revoked refresh token deactivates the credential so the
// pipeline can tell the user to reconnect.
type Mailer struct {
	clientID     string
	clientSecret string
	tokenURL     string
	apiURL       string
	creds        domain.MailCredentialRepository
	hc           *http.Client
}

// New builds the mailer. tokenURL and apiURL override the Google
// endpoints in tests; empty means production defaults.
func New(cfg config.Config, creds domain.MailCredentialRepository, tokenURL, apiURL string) *Mailer {
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Mailer{
		clientID:     cfg.GmailClientID,
		clientSecret: cfg.GmailClientSecret,
		tokenURL:     tokenURL,
		apiURL:       apiURL,
		creds:        creds,
		hc:           &http.Client{Timeout: 30 * time.Second},
	}
}

func sendErr(kind domain.SendFailureKind, guidance string, err error) *domain.SendError {
	return &domain.SendError{Kind: kind, Guidance: guidance, Err: err}
}

// credential loads and freshens the user's token. Refresh failures are
// already classified.
func (m *Mailer) credential(ctx domain.Context, userID string) (domain.MailCredential, error) {
	cred, err := m.creds.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return cred, sendErr(domain.SendFailurePermanentConfig,
				"No Gmail account is connected. Connect one in settings before sending applications.", err)
		}
		return cred, sendErr(domain.SendFailureTransient, "Could not load mail credentials, try again.", err)
	}
	if !cred.Active {
		return cred, sendErr(domain.SendFailureTokenRevoked,
			"Gmail access was revoked. Reconnect your account in settings.", domain.ErrAuthRevoked)
	}
	if time.Until(cred.Expiry) > time.Minute {
		return cred, nil
	}
	return m.refresh(ctx, cred)
}

func (m *Mailer) refresh(ctx domain.Context, cred domain.MailCredential) (domain.MailCredential, error) {
	form := url.Values{
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
		"refresh_token": {cred.RefreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return cred, sendErr(domain.SendFailureTransient, "Could not reach Google, try again.", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.hc.Do(req)
	observability.RecordAPIUsage("gmail", "token_refresh", err == nil)
	if err != nil {
		return cred, sendErr(domain.SendFailureTransient, "Could not reach Google, try again.", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &body)
		if body.Error == "invalid_grant" || resp.StatusCode == http.StatusUnauthorized {
			if derr := m.creds.Deactivate(ctx, cred.UserID); derr != nil {
				slog.Error("deactivate revoked credential", slog.String("user_id", cred.UserID), slog.Any("error", derr))
			}
			slog.Warn("gmail refresh token revoked", slog.String("user_id", cred.UserID))
			return cred, sendErr(domain.SendFailureTokenRevoked,
				"Gmail access was revoked. Reconnect your account in settings.", domain.ErrAuthRevoked)
		}
		return cred, sendErr(domain.SendFailurePermanentConfig,
			"The Gmail integration is misconfigured. Check the connected account.",
			fmt.Errorf("token refresh status %d: %s", resp.StatusCode, body.Error))
	}
	if resp.StatusCode != http.StatusOK {
		return cred, sendErr(domain.SendFailureTransient, "Google is having trouble, try again shortly.",
			fmt.Errorf("token refresh status %d", resp.StatusCode))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &tok); err != nil || tok.AccessToken == "" {
		return cred, sendErr(domain.SendFailureTransient, "Google returned an unusable token, try again.", err)
	}
	cred.AccessToken = tok.AccessToken
	cred.Expiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	cred.UpdatedAt = time.Now()
	if err := m.creds.Save(ctx, cred); err != nil {
		slog.Warn("persist refreshed token", slog.String("user_id", cred.UserID), slog.Any("error", err))
	}
	return cred, nil
}

// Send delivers one message, optionally with a PDF attachment, and
// returns the Gmail thread id for reply watching.
func (m *Mailer) Send(ctx domain.Context, userID string, mail domain.OutboundMail) (string, error) {
	cred, err := m.credential(ctx, userID)
	if err != nil {
		return "", err
	}

	raw, err := buildMIME(cred.Address, mail)
	if err != nil {
		return "", sendErr(domain.SendFailurePermanentConfig, "The message could not be assembled.", err)
	}
	payload, _ := json.Marshal(map[string]string{
		"raw": base64.RawURLEncoding.EncodeToString(raw),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL+"/users/me/messages/send", bytes.NewReader(payload))
	if err != nil {
		return "", sendErr(domain.SendFailureTransient, "Could not reach Gmail, try again.", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := m.hc.Do(req)
	observability.ProviderRequestDuration.WithLabelValues("gmail", "send").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RecordAPIUsage("gmail", "send", false)
		return "", sendErr(domain.SendFailureTransient, "Could not reach Gmail, try again.", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		observability.RecordAPIUsage("gmail", "send", false)
		if derr := m.creds.Deactivate(ctx, userID); derr != nil {
			slog.Error("deactivate revoked credential", slog.String("user_id", userID), slog.Any("error", derr))
		}
		return "", sendErr(domain.SendFailureTokenRevoked,
			"Gmail access was revoked. Reconnect your account in settings.", domain.ErrAuthRevoked)
	case resp.StatusCode == http.StatusForbidden:
		observability.RecordAPIUsage("gmail", "send", false)
		return "", sendErr(domain.SendFailurePermanentConfig,
			"Gmail rejected the send. Check the account's sending permissions.",
			fmt.Errorf("send status 403: %s", truncate(body, 256)))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		observability.RecordAPIUsage("gmail", "send", false)
		return "", sendErr(domain.SendFailureTransient, "Gmail is rate limiting sends, try again shortly.",
			fmt.Errorf("send status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		observability.RecordAPIUsage("gmail", "send", false)
		return "", sendErr(domain.SendFailurePermanentConfig, "Gmail rejected the message.",
			fmt.Errorf("send status %d: %s", resp.StatusCode, truncate(body, 256)))
	}
	observability.RecordAPIUsage("gmail", "send", true)

	var out struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", sendErr(domain.SendFailureTransient, "Gmail returned an unreadable response.", err)
	}
	slog.Info("application mail sent",
		slog.String("user_id", userID),
		slog.String("thread_id", out.ThreadID))
	return out.ThreadID, nil
}

// ThreadMessages lists messages in a thread newer than since, excluding
// the user's own.
func (m *Mailer) ThreadMessages(ctx domain.Context, userID, threadID string, since time.Time) ([]domain.InboundMail, error) {
	cred, err := m.credential(ctx, userID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/users/me/threads/%s?format=full", m.apiURL, url.PathEscape(threadID)), nil)
	if err != nil {
		return nil, fmt.Errorf("op=gmail.thread: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := m.hc.Do(req)
	observability.RecordAPIUsage("gmail", "thread_get", err == nil)
	if err != nil {
		return nil, fmt.Errorf("op=gmail.thread id=%s: %w", threadID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("op=gmail.thread id=%s: %w", threadID, domain.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("op=gmail.thread id=%s: status %d", threadID, resp.StatusCode)
	}

	var out struct {
		Messages []struct {
			InternalDate string `json:"internalDate"`
			Snippet      string `json:"snippet"`
			Payload      struct {
				Headers []struct {
					Name  string `json:"name"`
					Value string `json:"value"`
				} `json:"headers"`
			} `json:"payload"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("op=gmail.thread id=%s: decode: %w", threadID, err)
	}

	own := strings.ToLower(cred.Address)
	var inbound []domain.InboundMail
	for _, msg := range out.Messages {
		var from string
		for _, h := range msg.Payload.Headers {
			if strings.EqualFold(h.Name, "From") {
				from = h.Value
				break
			}
		}
		if own != "" && strings.Contains(strings.ToLower(from), own) {
			continue
		}
		ms, _ := strconv.ParseInt(msg.InternalDate, 10, 64)
		at := time.UnixMilli(ms)
		if !at.After(since) {
			continue
		}
		inbound = append(inbound, domain.InboundMail{From: from, Snippet: msg.Snippet, At: at})
	}
	return inbound, nil
}

// buildMIME assembles the RFC 822 message: text body plus an optional
// PDF attachment in a multipart/mixed envelope.
func buildMIME(from string, mail domain.OutboundMail) ([]byte, error) {
	var buf bytes.Buffer
	if len(mail.Attachment) == 0 {
		fmt.Fprintf(&buf, "From: %s\r\n", from)
		fmt.Fprintf(&buf, "To: %s\r\n", mail.To)
		fmt.Fprintf(&buf, "Subject: %s\r\n", mail.Subject)
		buf.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		buf.WriteString(mail.Body)
		return buf.Bytes(), nil
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", mail.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mail.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", w.Boundary())

	text, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`text/plain; charset="UTF-8"`},
	})
	if err != nil {
		return nil, err
	}
	if _, err := text.Write([]byte(mail.Body)); err != nil {
		return nil, err
	}

	name := mail.AttachName
	if name == "" {
		name = "cv.pdf"
	}
	att, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"application/pdf; name=" + strconv.Quote(name)},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {"attachment; filename=" + strconv.Quote(name)},
	})
	if err != nil {
		return nil, err
	}
	if err := writeBase64Wrapped(att, mail.Attachment); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

// writeBase64Wrapped emits base64 in 76-column lines per RFC 2045.
func writeBase64Wrapped(w io.Writer, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 0 {
		n := 76
		if len(enc) < n {
			n = len(enc)
		}
		if _, err := io.WriteString(w, enc[:n]+"\r\n"); err != nil {
			return err
		}
		enc = enc[n:]
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}

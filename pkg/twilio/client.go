package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"whatsingest/internal/constants"
	"whatsingest/internal/models"
	"whatsingest/internal/privacy"
	"whatsingest/pkg/ingest/types"
	"whatsingest/pkg/media"
)

// Client is the pull-style provider backed by the Twilio Messages API.
// History is fetched by polling Messages.json and following the
// next_page_uri cursor.
type Client struct {
	accountSID  string
	authToken   string
	phoneNumber string
	logger      *logrus.Logger
	now         func() time.Time
}

// New creates a Twilio provider. Credentials may be partial; the client
// layer decides whether authentication is even attempted.
func New(accountSID, authToken, phoneNumber string, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Client{
		accountSID:  accountSID,
		authToken:   authToken,
		phoneNumber: phoneNumber,
		logger:      logger,
		now:         time.Now,
	}
}

func (c *Client) Kind() models.ProviderKind {
	return models.ProviderTwilio
}

func (c *Client) HasCredentials() bool {
	return c.accountSID != "" && c.authToken != ""
}

func (c *Client) accountURL() string {
	return fmt.Sprintf("%s/%s/Accounts/%s",
		constants.TwilioAPIHost, constants.TwilioAPIVersion, c.accountSID)
}

// AuthRequest fetches the account resource itself; a 200 proves the
// SID/token pair is live.
func (c *Client) AuthRequest(ctx context.Context) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, c.accountURL()+".json", nil)
}

func (c *Client) Sign(req *http.Request) {
	req.SetBasicAuth(c.accountSID, c.authToken)
}

// messagePage keeps entries raw so one malformed record is skipped
// instead of failing the whole page decode.
type messagePage struct {
	Messages    []json.RawMessage `json:"messages"`
	NextPageURI string            `json:"next_page_uri"`
}

type messageResource struct {
	SID               string `json:"sid"`
	From              string `json:"from"`
	Body              string `json:"body"`
	DateSent          string `json:"date_sent"`
	NumMedia          string `json:"num_media"`
	MediaContentType0 string `json:"media_content_type_0"`
	MediaURL0         string `json:"media_url_0"`
}

// ExtractMessages pulls message history, newest first, following
// pagination cursors up to the page ceiling. Extraction is best-effort:
// a failed or malformed page stops the loop and whatever was
// accumulated so far is returned.
func (c *Client) ExtractMessages(ctx context.Context, exec types.Executor, dateRange *models.DateRange) []models.Message {
	query := url.Values{}
	query.Set("PageSize", strconv.Itoa(constants.TwilioPageSize))
	if c.phoneNumber != "" {
		query.Set("From", constants.WhatsAppAddressPrefix+c.phoneNumber)
	}
	if dateRange != nil {
		if !dateRange.Start.IsZero() {
			query.Set("DateSent>", dateRange.Start.Format("2006-01-02"))
		}
		if !dateRange.End.IsZero() {
			query.Set("DateSent<", dateRange.End.Format("2006-01-02"))
		}
	}

	var messages []models.Message

	requestURL := c.accountURL() + "/Messages.json"
	opts := &types.RequestOptions{Query: query}

	for page := 0; page < constants.MaxExtractionPages; page++ {
		resp := exec.Execute(ctx, http.MethodGet, requestURL, opts)
		if resp == nil {
			c.logger.WithField("page", page).Warn("Message page request failed, returning partial results")
			return messages
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			c.logger.WithField("page", page).WithError(err).Warn("Failed to read message page, returning partial results")
			return messages
		}

		var pageData messagePage
		if err := json.Unmarshal(body, &pageData); err != nil {
			c.logger.WithField("page", page).WithError(err).Warn("Failed to decode message page, returning partial results")
			return messages
		}

		for _, raw := range pageData.Messages {
			msg, err := c.parseMessage(raw)
			if err != nil {
				c.logger.WithError(err).Warn("Skipping malformed message record")
				continue
			}
			messages = append(messages, *msg)
		}

		if pageData.NextPageURI == "" {
			return messages
		}

		// Cursor URIs are host-relative and already carry their query.
		requestURL = constants.TwilioAPIHost + pageData.NextPageURI
		opts = nil
	}

	c.logger.WithField("pages", constants.MaxExtractionPages).Warn("Reached pagination ceiling, returning partial results")
	return messages
}

func (c *Client) parseMessage(raw json.RawMessage) (*models.Message, error) {
	var res messageResource
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("undecodable message record: %w", err)
	}
	if res.SID == "" {
		return nil, fmt.Errorf("message record has no sid")
	}

	msg := &models.Message{
		ID:          res.SID,
		Timestamp:   c.parseDateSent(res.SID, res.DateSent),
		Sender:      strings.TrimPrefix(res.From, constants.WhatsAppAddressPrefix),
		Content:     res.Body,
		Type:        models.MessageTypeText,
		ExtractedAt: c.now().UTC(),
	}

	if res.NumMedia != "" && res.NumMedia != "0" {
		msg.Type = classifyContentType(res.MediaContentType0)
		mediaURL := res.MediaURL0
		if mediaURL != "" && strings.HasPrefix(mediaURL, "/") {
			mediaURL = constants.TwilioAPIHost + mediaURL
		}
		msg.Media = &models.MediaRef{
			URL:      mediaURL,
			Filename: media.GenerateFilename(mediaURL, msg.Type),
		}
	}

	return msg, nil
}

// parseDateSent handles the RFC-2822 timestamps Twilio emits. The zone
// offset is discarded, not converted: the wall-clock fields are kept
// and restamped as UTC so records sort consistently.
func (c *Client) parseDateSent(sid, dateSent string) time.Time {
	if dateSent == "" {
		return c.now().UTC()
	}

	t, err := time.Parse(time.RFC1123Z, dateSent)
	if err != nil {
		t, err = time.Parse(time.RFC1123, dateSent)
	}
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"message_id": privacy.MaskMessageID(sid),
			"date_sent":  dateSent,
		}).Warn("Unparseable message timestamp, using extraction time")
		return c.now().UTC()
	}

	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

func classifyContentType(contentType string) models.MessageType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.MessageTypeImage
	case strings.HasPrefix(contentType, "audio/"):
		return models.MessageTypeAudio
	case strings.HasPrefix(contentType, "video/"):
		return models.MessageTypeVideo
	case strings.HasPrefix(contentType, "application/"):
		return models.MessageTypeDocument
	default:
		return models.MessageTypeMedia
	}
}

// ProcessWebhook is not part of the pull surface; Twilio history is
// polled, so inbound payloads are dropped with a warning.
func (c *Client) ProcessWebhook(ctx context.Context, exec types.Executor, payload []byte) *models.Message {
	c.logger.Warn("Webhook processing is not supported on the Twilio provider, ignoring payload")
	return nil
}

// ResolveMediaURL is a no-op for Twilio: message records already carry
// fetchable media URLs.
func (c *Client) ResolveMediaURL(ctx context.Context, exec types.Executor, locator string) string {
	return locator
}

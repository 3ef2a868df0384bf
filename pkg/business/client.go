package business

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"whatsingest/internal/models"
	"whatsingest/internal/privacy"
	"whatsingest/pkg/ingest/types"
	"whatsingest/pkg/media"
)

// Client is the push-style provider backed by the Meta Business (Graph)
// API. Messages arrive as webhook payloads; the only outbound calls are
// the identity check and media-id resolution.
type Client struct {
	apiToken      string
	phoneNumberID string
	baseURL       string
	logger        *logrus.Logger
	now           func() time.Time
}

// New creates a Business provider against baseURL (the versioned Graph
// API root).
func New(apiToken, phoneNumberID, baseURL string, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Client{
		apiToken:      apiToken,
		phoneNumberID: phoneNumberID,
		baseURL:       baseURL,
		logger:        logger,
		now:           time.Now,
	}
}

func (c *Client) Kind() models.ProviderKind {
	return models.ProviderBusiness
}

func (c *Client) HasCredentials() bool {
	return c.apiToken != "" && c.phoneNumberID != ""
}

// AuthRequest fetches the phone number resource; a 200 proves the token
// is live and scoped to the number.
func (c *Client) AuthRequest(ctx context.Context) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s", c.baseURL, c.phoneNumberID), nil)
}

func (c *Client) Sign(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")
}

// ExtractMessages is not part of the push surface: the Business API has
// no history endpoint, so polling degrades to an empty result.
func (c *Client) ExtractMessages(ctx context.Context, exec types.Executor, dateRange *models.DateRange) []models.Message {
	c.logger.Warn("The Business API has no message history endpoint; configure webhooks to receive messages")
	return nil
}

// Webhook payload nesting: entry[0].changes[0].value.messages[0].
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []webhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	ID        string        `json:"id"`
	From      string        `json:"from"`
	Timestamp string        `json:"timestamp"`
	Type      string        `json:"type"`
	Text      *webhookText  `json:"text,omitempty"`
	Image     *webhookMedia `json:"image,omitempty"`
	Audio     *webhookMedia `json:"audio,omitempty"`
	Video     *webhookMedia `json:"video,omitempty"`
	Document  *webhookMedia `json:"document,omitempty"`
}

type webhookText struct {
	Body string `json:"body"`
}

type webhookMedia struct {
	ID      string `json:"id"`
	Caption string `json:"caption,omitempty"`
}

// ProcessWebhook parses one webhook notification into at most one
// normalized message. Any missing nesting level means the payload is a
// status update or otherwise carries no message, and nil is returned
// without error. Media ids are resolved to URLs inline; a failed
// resolution still yields the message, with an empty media URL.
func (c *Client) ProcessWebhook(ctx context.Context, exec types.Executor, payload []byte) *models.Message {
	var parsed webhookPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		c.logger.WithError(err).Warn("Undecodable webhook payload")
		return nil
	}

	if len(parsed.Entry) == 0 || len(parsed.Entry[0].Changes) == 0 ||
		len(parsed.Entry[0].Changes[0].Value.Messages) == 0 {
		return nil
	}

	wm := parsed.Entry[0].Changes[0].Value.Messages[0]
	if wm.ID == "" {
		return nil
	}

	msg := &models.Message{
		ID:          wm.ID,
		Timestamp:   c.parseTimestamp(wm.ID, wm.Timestamp),
		Sender:      wm.From,
		Type:        models.MessageTypeText,
		ExtractedAt: c.now().UTC(),
	}

	var mediaID, caption string
	switch wm.Type {
	case "text":
		if wm.Text != nil {
			msg.Content = wm.Text.Body
		}
	case "image":
		msg.Type = models.MessageTypeImage
		mediaID, caption = mediaFields(wm.Image)
	case "audio":
		msg.Type = models.MessageTypeAudio
		mediaID, caption = mediaFields(wm.Audio)
	case "video":
		msg.Type = models.MessageTypeVideo
		mediaID, caption = mediaFields(wm.Video)
	case "document":
		msg.Type = models.MessageTypeDocument
		mediaID, caption = mediaFields(wm.Document)
	default:
		// Unknown kinds (stickers, reactions, contacts) degrade to an
		// empty text message so the id and sender still get recorded.
		c.logger.WithFields(logrus.Fields{
			"message_id": privacy.MaskMessageID(wm.ID),
			"type":       wm.Type,
		}).Info("Unhandled webhook message type")
	}

	if msg.Type.IsMedia() {
		msg.Content = caption
		mediaURL := c.ResolveMediaURL(ctx, exec, mediaID)
		msg.Media = &models.MediaRef{
			URL:      mediaURL,
			Filename: media.GenerateFilename(mediaURL, msg.Type),
		}
	}

	return msg
}

func mediaFields(m *webhookMedia) (id, caption string) {
	if m == nil {
		return "", ""
	}
	return m.ID, m.Caption
}

// parseTimestamp handles the epoch-second strings webhooks carry.
func (c *Client) parseTimestamp(id, raw string) time.Time {
	if raw != "" {
		if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.Unix(epoch, 0).UTC()
		}
		c.logger.WithFields(logrus.Fields{
			"message_id": privacy.MaskMessageID(id),
			"timestamp":  raw,
		}).Warn("Unparseable webhook timestamp, using receipt time")
	}
	return c.now().UTC()
}

// ResolveMediaURL exchanges a media id for a short-lived download URL
// via an authenticated metadata call. Empty on failure.
func (c *Client) ResolveMediaURL(ctx context.Context, exec types.Executor, locator string) string {
	if locator == "" {
		return ""
	}

	resp := exec.Execute(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.baseURL, locator), nil)
	if resp == nil {
		c.logger.WithField("media_id", locator).Warn("Media URL resolution failed")
		return ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.WithField("media_id", locator).WithError(err).Warn("Failed to read media metadata")
		return ""
	}

	var meta struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		c.logger.WithField("media_id", locator).WithError(err).Warn("Undecodable media metadata")
		return ""
	}

	return meta.URL
}

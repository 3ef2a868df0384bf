package twilio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsingest/internal/models"
	"whatsingest/pkg/ingest/types"
)

type execFunc func(ctx context.Context, method, requestURL string, opts *types.RequestOptions) *http.Response

func (f execFunc) Execute(ctx context.Context, method, requestURL string, opts *types.RequestOptions) *http.Response {
	return f(ctx, method, requestURL, opts)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient() *Client {
	c := New("AC123", "secret-token", "15551234567", nil)
	c.now = func() time.Time { return time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC) }
	return c
}

func TestKindAndCredentials(t *testing.T) {
	c := newTestClient()
	assert.Equal(t, models.ProviderTwilio, c.Kind())
	assert.True(t, c.HasCredentials())

	assert.False(t, New("AC123", "", "", nil).HasCredentials())
	assert.False(t, New("", "secret", "", nil).HasCredentials())
}

func TestAuthRequestAndSign(t *testing.T) {
	c := newTestClient()

	req, err := c.AuthRequest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "https://api.twilio.com/2010-04-01/Accounts/AC123.json", req.URL.String())

	c.Sign(req)
	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "AC123", user)
	assert.Equal(t, "secret-token", pass)
}

func TestExtractMessagesSinglePage(t *testing.T) {
	c := newTestClient()

	var gotURL string
	var gotOpts *types.RequestOptions
	exec := execFunc(func(ctx context.Context, method, requestURL string, opts *types.RequestOptions) *http.Response {
		gotURL = requestURL
		gotOpts = opts
		return jsonResponse(http.StatusOK, `{
			"messages": [
				{
					"sid": "SM1",
					"from": "whatsapp:15551234567",
					"body": "hello",
					"date_sent": "Sat, 01 Jun 2024 14:30:05 +0200",
					"num_media": "0"
				},
				{
					"sid": "SM2",
					"from": "whatsapp:15551234567",
					"body": "",
					"date_sent": "Sat, 01 Jun 2024 15:00:00 +0000",
					"num_media": "1",
					"media_content_type_0": "image/jpeg",
					"media_url_0": "/2010-04-01/Accounts/AC123/Messages/SM2/Media/ME1"
				}
			],
			"next_page_uri": ""
		}`)
	})

	dr := &models.DateRange{
		Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
	}
	messages := c.ExtractMessages(context.Background(), exec, dr)

	require.Len(t, messages, 2)
	assert.Equal(t, "https://api.twilio.com/2010-04-01/Accounts/AC123/Messages.json", gotURL)

	require.NotNil(t, gotOpts)
	assert.Equal(t, "1000", gotOpts.Query.Get("PageSize"))
	assert.Equal(t, "whatsapp:15551234567", gotOpts.Query.Get("From"))
	assert.Equal(t, "2024-05-01", gotOpts.Query.Get("DateSent>"))
	assert.Equal(t, "2024-06-02", gotOpts.Query.Get("DateSent<"))

	text := messages[0]
	assert.Equal(t, "SM1", text.ID)
	assert.Equal(t, "15551234567", text.Sender, "whatsapp: prefix must be stripped")
	assert.Equal(t, "hello", text.Content)
	assert.Equal(t, models.MessageTypeText, text.Type)
	assert.Nil(t, text.Media)
	// The +0200 offset is discarded: wall-clock fields survive as UTC.
	assert.Equal(t, time.Date(2024, 6, 1, 14, 30, 5, 0, time.UTC), text.Timestamp)

	img := messages[1]
	assert.Equal(t, models.MessageTypeImage, img.Type)
	require.NotNil(t, img.Media)
	assert.Equal(t, "https://api.twilio.com/2010-04-01/Accounts/AC123/Messages/SM2/Media/ME1", img.Media.URL)
	assert.True(t, strings.HasPrefix(img.Media.Filename, "whatsapp_image_"))
	assert.True(t, strings.HasSuffix(img.Media.Filename, ".jpg"),
		"extensionless media URLs fall back to the kind's extension, got %s", img.Media.Filename)
}

func TestExtractMessagesFollowsPagination(t *testing.T) {
	c := newTestClient()

	calls := 0
	var secondURL string
	var secondOpts *types.RequestOptions
	exec := execFunc(func(ctx context.Context, method, requestURL string, opts *types.RequestOptions) *http.Response {
		calls++
		if calls == 1 {
			return jsonResponse(http.StatusOK, `{
				"messages": [{"sid": "SM1", "from": "whatsapp:1", "body": "a", "date_sent": "Sat, 01 Jun 2024 10:00:00 +0000", "num_media": "0"}],
				"next_page_uri": "/2010-04-01/Accounts/AC123/Messages.json?Page=1&PageToken=PA1"
			}`)
		}
		secondURL = requestURL
		secondOpts = opts
		return jsonResponse(http.StatusOK, `{
			"messages": [{"sid": "SM2", "from": "whatsapp:1", "body": "b", "date_sent": "Sat, 01 Jun 2024 11:00:00 +0000", "num_media": "0"}],
			"next_page_uri": ""
		}`)
	})

	messages := c.ExtractMessages(context.Background(), exec, nil)

	require.Len(t, messages, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "https://api.twilio.com/2010-04-01/Accounts/AC123/Messages.json?Page=1&PageToken=PA1", secondURL)
	assert.Nil(t, secondOpts, "cursor URIs already carry their query")
}

func TestExtractMessagesSkipsMalformedRecords(t *testing.T) {
	c := newTestClient()

	exec := execFunc(func(ctx context.Context, method, requestURL string, opts *types.RequestOptions) *http.Response {
		return jsonResponse(http.StatusOK, `{
			"messages": [
				{"from": "whatsapp:1", "body": "no sid"},
				{"sid": "SM2", "from": "whatsapp:1", "body": "good", "date_sent": "Sat, 01 Jun 2024 10:00:00 +0000", "num_media": "0"}
			],
			"next_page_uri": ""
		}`)
	})

	messages := c.ExtractMessages(context.Background(), exec, nil)

	require.Len(t, messages, 1)
	assert.Equal(t, "SM2", messages[0].ID)
}

func TestExtractMessagesReturnsPartialOnFailure(t *testing.T) {
	c := newTestClient()

	calls := 0
	exec := execFunc(func(ctx context.Context, method, requestURL string, opts *types.RequestOptions) *http.Response {
		calls++
		if calls == 1 {
			return jsonResponse(http.StatusOK, `{
				"messages": [{"sid": "SM1", "from": "whatsapp:1", "body": "a", "date_sent": "Sat, 01 Jun 2024 10:00:00 +0000", "num_media": "0"}],
				"next_page_uri": "/2010-04-01/Accounts/AC123/Messages.json?Page=1"
			}`)
		}
		return nil
	})

	messages := c.ExtractMessages(context.Background(), exec, nil)

	require.Len(t, messages, 1)
	assert.Equal(t, "SM1", messages[0].ID)
}

func TestExtractMessagesStopsAtPageCeiling(t *testing.T) {
	c := newTestClient()

	calls := 0
	exec := execFunc(func(ctx context.Context, method, requestURL string, opts *types.RequestOptions) *http.Response {
		calls++
		return jsonResponse(http.StatusOK, fmt.Sprintf(`{
			"messages": [{"sid": "SM%d", "from": "whatsapp:1", "body": "x", "date_sent": "Sat, 01 Jun 2024 10:00:00 +0000", "num_media": "0"}],
			"next_page_uri": "/2010-04-01/Accounts/AC123/Messages.json?Page=%d"
		}`, calls, calls))
	})

	messages := c.ExtractMessages(context.Background(), exec, nil)

	assert.Equal(t, 100, calls)
	assert.Len(t, messages, 100)
}

func TestParseDateSentFallbacks(t *testing.T) {
	c := newTestClient()
	extractionTime := time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, extractionTime, c.parseDateSent("SM1", ""))
	assert.Equal(t, extractionTime, c.parseDateSent("SM1", "not a date"))

	// RFC1123 without a numeric zone also parses.
	got := c.parseDateSent("SM1", "Sat, 01 Jun 2024 14:30:05 GMT")
	assert.Equal(t, time.Date(2024, 6, 1, 14, 30, 5, 0, time.UTC), got)
}

func TestClassifyContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        models.MessageType
	}{
		{"image/jpeg", models.MessageTypeImage},
		{"audio/ogg", models.MessageTypeAudio},
		{"video/mp4", models.MessageTypeVideo},
		{"application/pdf", models.MessageTypeDocument},
		{"text/vcard", models.MessageTypeMedia},
		{"", models.MessageTypeMedia},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyContentType(tt.contentType))
		})
	}
}

func TestProcessWebhookUnsupported(t *testing.T) {
	c := newTestClient()
	msg := c.ProcessWebhook(context.Background(), nil, []byte(`{"anything": true}`))
	assert.Nil(t, msg)
}

func TestResolveMediaURLPassthrough(t *testing.T) {
	c := newTestClient()
	url := "https://api.twilio.com/media/ME1"
	assert.Equal(t, url, c.ResolveMediaURL(context.Background(), nil, url))
}

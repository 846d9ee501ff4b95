package email

import (
	"context"
	"errors"
	"testing"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/trackr/internal/model"
)

type fakeSender struct {
	params *resend.SendEmailRequest
	opts   *resend.SendEmailOptions
	err    error
}

func (f *fakeSender) SendWithOptions(_ context.Context, params *resend.SendEmailRequest, opts *resend.SendEmailOptions) (*resend.SendEmailResponse, error) {
	f.params, f.opts = params, opts
	if f.err != nil {
		return nil, f.err
	}
	return &resend.SendEmailResponse{Id: "em_1"}, nil
}

func TestRender_AllTemplatesWithPreviewData(t *testing.T) {
	for name, data := range PreviewData {
		html, err := Render(name, data)
		require.NoError(t, err, name)
		assert.Contains(t, html, data["URL"], name)
		assert.Contains(t, html, "member of acme", name)
	}
}

func TestRender_EscapesHTML(t *testing.T) {
	html, err := Render(TemplateIssueAlert, map[string]string{"Title": "<script>x</script>"})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestForNotification(t *testing.T) {
	tmpl, subject := ForNotification(model.NotifyAlerts, "Boom")
	assert.Equal(t, TemplateIssueAlert, tmpl)
	assert.Equal(t, "New issue: Boom", subject)

	tmpl, _ = ForNotification(model.NotifyQuota, "Quota")
	assert.Equal(t, TemplateNotice, tmpl)
}

func TestSendEmail(t *testing.T) {
	logger := zerolog.Nop()
	f := &fakeSender{}
	c := &Client{emails: f, from: "Trackr <n@trackr.dev>", logger: &logger}

	err := c.SendEmail(context.Background(), "ann@x.io", "New issue", TemplateIssueAlert, PreviewData[TemplateIssueAlert], "deliver-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ann@x.io"}, f.params.To)
	assert.Equal(t, "Trackr <n@trackr.dev>", f.params.From)
	assert.Contains(t, f.params.Html, "View issue")
	require.NotNil(t, f.opts)
	assert.Equal(t, "deliver-1", f.opts.IdempotencyKey)

	f.err = errors.New("resend down")
	assert.Error(t, c.SendEmail(context.Background(), "ann@x.io", "s", TemplateNotice, nil, ""))
}

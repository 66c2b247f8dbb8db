package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifierPostsEvent(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, nil, nil)
	err := n.Notify(context.Background(), Event{Title: "t", Message: "m"})
	require.NoError(t, err)
	assert.Contains(t, string(gotBody), "\"title\":\"t\"")
}

func TestWebhookNotifierSwallowsDeliveryErrors(t *testing.T) {
	n := NewWebhookNotifier("http://127.0.0.1:0", nil, nil)
	err := n.Notify(context.Background(), Event{Title: "t"})
	assert.NoError(t, err)
}

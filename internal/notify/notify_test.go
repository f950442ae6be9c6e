package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	subject string
	data    []byte
	err     error
}

func (c *capture) Publish(subject string, data []byte) error {
	c.subject = subject
	c.data = data
	return c.err
}

func TestNotify(t *testing.T) {
	pub := &capture{}
	n := New(pub, "")
	assert.Equal(t, DefaultSubject, n.Subject())

	event := ImagePushed{RunID: "7", Environment: "production", Commit: "abc", Images: []string{"r/api:1"}, Digest: "sha256:1"}
	require.NoError(t, n.Notify(context.Background(), event))
	assert.Equal(t, DefaultSubject, pub.subject)

	var decoded ImagePushed
	require.NoError(t, json.Unmarshal(pub.data, &decoded))
	assert.Equal(t, event, decoded)
}

func TestNotifyErrors(t *testing.T) {
	n := New(&capture{err: errors.New("closed")}, "releases")
	require.Error(t, n.Notify(context.Background(), ImagePushed{}))

	err := n.Notify(context.Background(), ImagePushed{Images: []string{"r/api:1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "releases")
}

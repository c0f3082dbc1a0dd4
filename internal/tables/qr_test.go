package tables_test

import (
	"bytes"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-ordering/internal/tables"
)

var ref = tables.Ref{TableID: "table-1", OrganizationID: "org-1", BranchID: "branch-1"}

func TestCodecRoundTrip(t *testing.T) {
	c, err := tables.NewCodec("secret")
	require.NoError(t, err)

	code, err := c.Encode(ref)
	require.NoError(t, err)
	got, err := c.Decode(code)
	require.NoError(t, err)
	assert.Equal(t, ref, got)

	again, err := c.Encode(ref)
	require.NoError(t, err)
	assert.NotEqual(t, code, again, "codes use a fresh nonce")
}

func TestCodecRejectsForeignAndTamperedCodes(t *testing.T) {
	c, err := tables.NewCodec("secret")
	require.NoError(t, err)
	other, err := tables.NewCodec("another secret")
	require.NoError(t, err)

	code, err := other.Encode(ref)
	require.NoError(t, err)
	_, err = c.Decode(code)
	assert.ErrorIs(t, err, tables.ErrInvalidCode)

	code, err = c.Encode(ref)
	require.NoError(t, err)
	tampered := []byte(code)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}
	_, err = c.Decode(string(tampered))
	assert.ErrorIs(t, err, tables.ErrInvalidCode)

	for _, bad := range []string{"", "***", "YWJj"} {
		_, err = c.Decode(bad)
		assert.ErrorIs(t, err, tables.ErrInvalidCode, bad)
	}
}

func TestJoinURLAndQRCode(t *testing.T) {
	c, err := tables.NewCodec("secret")
	require.NoError(t, err)

	link, err := c.JoinURL("https://menu.example.com/join?lang=es", ref)
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "es", u.Query().Get("lang"))
	got, err := c.Decode(u.Query().Get("code"))
	require.NoError(t, err)
	assert.Equal(t, "table-1", got.TableID)

	png, err := c.QRCode("https://menu.example.com/join", ref, 256)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

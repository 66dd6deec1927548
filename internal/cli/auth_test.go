package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/term"
)

const (
	ownerAccount  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	funderAccount = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

// isolate points HOME and the working directory at a temp dir and clears
// every source of server and key configuration.
func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("FUNDME_SERVER", "")
	t.Setenv("FUNDME_API_KEY", "")
	t.Chdir(tmp)

	cfgFile, server, apiKey = "", "", ""
	t.Cleanup(func() { cfgFile, server, apiKey = "", "", "" })
	return tmp
}

// whoamiServer answers /whoami for two keys.
func whoamiServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/ledger/whoami" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Header.Get("X-API-Key") {
		case "fm_key_owner0000000000000000":
			w.Write([]byte(`{"account":"` + ownerAccount + `","keyName":"ops","isOwner":true}`))
		case "fm_key_funder000000000000000":
			w.Write([]byte(`{"account":"` + funderAccount + `","keyName":"alice","isOwner":false}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"invalid API key"}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStdinFdCrossplatform(t *testing.T) {
	stdinFd := int(os.Stdin.Fd())
	assert.GreaterOrEqual(t, stdinFd, 0)
	t.Logf("stdin fd=%d, isTerminal=%v", stdinFd, term.IsTerminal(stdinFd))
}

func TestAuthLoginWithFlags(t *testing.T) {
	isolate(t)
	srv := whoamiServer(t)
	ctx := context.Background()

	t.Run("owner key", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runAuthLogin(ctx, &out, os.Stdin, srv.URL, "fm_key_owner0000000000000000"))
		assert.Contains(t, out.String(), ownerAccount)
		assert.Contains(t, out.String(), "(owner,")
		assert.Equal(t, "fm_key_owner0000000000000000", getCredential(srv.URL))
	})

	t.Run("invalid key", func(t *testing.T) {
		var out bytes.Buffer
		err := runAuthLogin(ctx, &out, os.Stdin, srv.URL, "fm_key_nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid API key")
		assert.Equal(t, "fm_key_owner0000000000000000", getCredential(srv.URL), "failed login keeps previous key")
	})

	t.Run("funder key replaces owner key", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runAuthLogin(ctx, &out, os.Stdin, srv.URL, "fm_key_funder000000000000000"))
		assert.Contains(t, out.String(), "(funder,")

		creds, err := loadCredentials()
		require.NoError(t, err)
		assert.Equal(t, funderAccount, creds.Servers[srv.URL].Account)
	})
}

func TestAuthLoginReadsKeyFromInput(t *testing.T) {
	tmp := isolate(t)
	srv := whoamiServer(t)

	path := filepath.Join(tmp, "key.txt")
	require.NoError(t, os.WriteFile(path, []byte("fm_key_funder000000000000000\n"), 0600))
	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()

	var out bytes.Buffer
	require.NoError(t, runAuthLogin(context.Background(), &out, in, srv.URL, ""))
	assert.Contains(t, out.String(), "Enter API key for "+srv.URL)
	assert.Equal(t, "fm_key_funder000000000000000", getCredential(srv.URL))
}

func TestAuthLoginEmptyKey(t *testing.T) {
	tmp := isolate(t)

	path := filepath.Join(tmp, "empty.txt")
	require.NoError(t, os.WriteFile(path, nil, 0600))
	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()

	var out bytes.Buffer
	err = runAuthLogin(context.Background(), &out, in, "http://localhost:1", "")
	assert.EqualError(t, err, "API key cannot be empty")
}

func TestCredentialsFilePermissions(t *testing.T) {
	tmp := isolate(t)

	require.NoError(t, saveCredential("http://a", ServerCredential{APIKey: "fm_key_a", Account: ownerAccount}))

	info, err := os.Stat(filepath.Join(tmp, ".fundme", "credentials"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dir, err := os.Stat(filepath.Join(tmp, ".fundme"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dir.Mode().Perm())
}

func TestAuthLogout(t *testing.T) {
	isolate(t)
	require.NoError(t, saveCredential("http://a", ServerCredential{APIKey: "fm_key_a"}))
	require.NoError(t, saveCredential("http://b", ServerCredential{APIKey: "fm_key_b"}))

	var out bytes.Buffer
	require.NoError(t, runAuthLogout(&out, "http://a", false))
	assert.Contains(t, out.String(), "Logged out from http://a")
	assert.Empty(t, getCredential("http://a"))
	assert.Equal(t, "fm_key_b", getCredential("http://b"))

	out.Reset()
	require.NoError(t, runAuthLogout(&out, "http://a", false))
	assert.Contains(t, out.String(), "No credentials found for http://a")

	out.Reset()
	require.NoError(t, runAuthLogout(&out, "", true))
	assert.Contains(t, out.String(), "All credentials cleared")
	_, err := loadCredentials()
	assert.True(t, os.IsNotExist(err))

	out.Reset()
	require.NoError(t, runAuthLogout(&out, "http://b", false))
	assert.Contains(t, out.String(), "No credentials found")
}

func TestAuthStatus(t *testing.T) {
	isolate(t)

	var out bytes.Buffer
	require.NoError(t, runAuthStatus(&out))
	assert.Contains(t, out.String(), "Not authenticated to any servers")

	require.NoError(t, saveCredential("http://b", ServerCredential{APIKey: "fm_key_bbbbbbbbbbbbbbbb"}))
	require.NoError(t, saveCredential("http://a", ServerCredential{APIKey: "fm_key_aaaaaaaaaaaaaaaa", Account: ownerAccount}))

	out.Reset()
	require.NoError(t, runAuthStatus(&out))
	s := out.String()
	assert.Contains(t, s, "http://a (account "+ownerAccount)
	assert.Contains(t, s, "http://b (key: fm_key_bbbbb...bbbb)")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("http://a")), bytes.Index(out.Bytes(), []byte("http://b")))
	assert.NotContains(t, s, "fm_key_aaaaaaaaaaaaaaaa")
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "****"},
		{"short", "****"},
		{"fm_key_12345", "****"},
		{"fm_key_1234567890abcdef", "fm_key_12345...cdef"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maskAPIKey(tt.key), tt.key)
	}
}

func TestGetAPIKeyPrecedence(t *testing.T) {
	isolate(t)
	server = "http://fundme.test"
	require.NoError(t, saveCredential("http://fundme.test", ServerCredential{APIKey: "from-file"}))

	assert.Equal(t, "from-file", getAPIKey())

	t.Setenv("FUNDME_API_KEY", "from-env")
	assert.Equal(t, "from-env", getAPIKey())

	apiKey = "from-flag"
	assert.Equal(t, "from-flag", getAPIKey())
}

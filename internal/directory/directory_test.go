package directory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "company_address_map.json", `{"ACME":"0x52908400098527886E0F7030069857D2E4169EE7","Globex":"0xabc"}`)

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", d.Lookup("ACME"))
	assert.Equal(t, Unknown, d.Lookup("Initech"))
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "directory.yaml", "ACME: \"0x01\"\nGlobex: \"0x02\"\n")

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0x02", d.Lookup("Globex"))
}

func TestLoad_MissingIsWarning(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "nope.json")} {
		d, err := Load(path)
		require.ErrorIs(t, err, domain.ErrDirectoryLoad)
		require.NotNil(t, d)
		assert.Equal(t, 0, d.Len())
		assert.Equal(t, Unknown, d.Lookup("ACME"))
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := writeFile(t, "bad.json", `{"ACME": [1,2]}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrDirectoryLoad)
}

func TestNew_CopiesInput(t *testing.T) {
	src := map[string]string{"ACME": "0x01"}
	d := New(src)
	src["ACME"] = "0x02"
	assert.Equal(t, "0x01", d.Lookup("ACME"))

	var nilDir *Directory
	assert.Equal(t, Unknown, nilDir.Lookup("ACME"))
}

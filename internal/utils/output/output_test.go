package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitsPage = `<html><head><title>Waits</title><script>var x = 1;</script><style>p{}</style></head>
<body>
<nav><a href="/">Home</a></nav>
<main>
<h1>Hip replacement in Leeds</h1>
<p class="lead">Average wait: <strong>18 weeks</strong></p>
<p>See <a href="/providers?city=leeds" title="Providers" class="btn">all providers</a>.</p>
<table><tr><th>Hospital</th><th>Weeks</th></tr><tr><td>St James's</td><td>21</td></tr></table>
</main>
<footer>Cookie policy</footer>
</body></html>`

func TestToMarkdown(t *testing.T) {
	md, err := ToMarkdown(waitsPage, "https://nhs.example/hip/leeds")
	require.NoError(t, err)

	assert.Contains(t, md, "# Hip replacement in Leeds")
	assert.Contains(t, md, "**18 weeks**")
	assert.Contains(t, md, `[all providers](https://nhs.example/providers?city=leeds "Providers")`)
	assert.Contains(t, md, "St James's")
	assert.NotContains(t, md, "var x")
	assert.NotContains(t, md, "Cookie policy")
	assert.NotContains(t, md, "Home")
}

func TestToMarkdown_Empty(t *testing.T) {
	md, err := ToMarkdown("   ", "https://nhs.example")
	require.NoError(t, err)
	assert.Empty(t, md)
}

func TestCleanHTML_KeepsNavOnlyDocument(t *testing.T) {
	cleaned, err := CleanHTML(`<html><body><nav>Only content here</nav></body></html>`)
	require.NoError(t, err)
	assert.Contains(t, cleaned, "Only content here")
}

func TestCleanHTML_StripsAttributes(t *testing.T) {
	cleaned, err := CleanHTML(`<div class="x" id="y"><a href="/a" onclick="go()">a</a></div>`)
	require.NoError(t, err)
	assert.Contains(t, cleaned, `<div><a href="/a">a</a></div>`)
}

func TestSaveJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "summary.json")
	require.NoError(t, SaveJSON(map[string]int{"total": 3}, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 3, got["total"])

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

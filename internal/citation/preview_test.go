package citation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!doctype html>
<html>
<head><title>Physical AI | Textbook</title></head>
<body>
<nav>Home / Module 0</nav>
<main>
<article>
<h1>Introduction to Physical AI</h1>
<p>Physical AI systems <strong>perceive</strong> and act.</p>
<h2 id="embodiment">Embodiment</h2>
<p>Bodies shape intelligence.</p>
<ul><li>sensors</li><li>actuators</li></ul>
<h2 id="simulation">Simulation</h2>
<p>Gazebo and Isaac Sim.</p>
</article>
</main>
<footer>Copyright</footer>
</body>
</html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/docs/module-0/physical-ai", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, page)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newPreviewer(t *testing.T, base string) *Previewer {
	t.Helper()
	p, err := NewPreviewer(base, WithLogger(log.New(io.Discard)))
	require.NoError(t, err)
	return p
}

func TestPreviewWholePage(t *testing.T) {
	srv := newServer(t)
	p := newPreviewer(t, srv.URL)

	preview, err := p.Preview(context.Background(), "/docs/module-0/physical-ai")
	require.NoError(t, err)

	assert.Equal(t, "Introduction to Physical AI", preview.Title)
	assert.Equal(t, srv.URL+"/docs/module-0/physical-ai", preview.URL)
	assert.Contains(t, preview.Markdown, "# Introduction to Physical AI")
	assert.Contains(t, preview.Markdown, "**perceive**")
	assert.Contains(t, preview.Markdown, "Gazebo and Isaac Sim.")
	assert.NotContains(t, preview.Markdown, "Home / Module 0")
	assert.NotContains(t, preview.Markdown, "Copyright")
}

func TestPreviewSection(t *testing.T) {
	srv := newServer(t)
	p := newPreviewer(t, srv.URL)

	preview, err := p.Preview(context.Background(), "/docs/module-0/physical-ai#embodiment")
	require.NoError(t, err)

	assert.Equal(t, "Embodiment", preview.Title)
	assert.Contains(t, preview.Markdown, "Bodies shape intelligence.")
	assert.Contains(t, preview.Markdown, "actuators")
	assert.NotContains(t, preview.Markdown, "Gazebo")
	assert.NotContains(t, preview.Markdown, "perceive")
}

func TestPreviewUnknownFragmentFallsBack(t *testing.T) {
	srv := newServer(t)
	p := newPreviewer(t, srv.URL)

	preview, err := p.Preview(context.Background(), "/docs/module-0/physical-ai#missing")
	require.NoError(t, err)
	assert.Equal(t, "Introduction to Physical AI", preview.Title)
	assert.Contains(t, preview.Markdown, "Gazebo")
}

func TestPreviewNotFound(t *testing.T) {
	srv := newServer(t)
	p := newPreviewer(t, srv.URL)

	_, err := p.Preview(context.Background(), "/docs/nowhere")
	assert.ErrorContains(t, err, "status 404")
}

func TestResolve(t *testing.T) {
	p := newPreviewer(t, "https://book.example.com/")

	got, err := p.Resolve("/docs/intro")
	require.NoError(t, err)
	assert.Equal(t, "https://book.example.com/docs/intro", got.String())

	got, err = p.Resolve("https://other.example.com/x")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/x", got.String())

	got, err = p.Resolve("/docs/intro#sensors")
	require.NoError(t, err)
	assert.Equal(t, "sensors", got.Fragment)

	_, err = p.Resolve("  ")
	assert.Error(t, err)
}

func TestNewPreviewerRejectsRelativeBase(t *testing.T) {
	_, err := NewPreviewer("/docs")
	assert.Error(t, err)
}

package client

import (
	"fmt"
	"html"
	"net/http"
)

const pageStyle = `<style>
  body { font-family: -apple-system, sans-serif; max-width: 480px;
         margin: 80px auto; padding: 0 20px; color: #1a1a2e; }
  h1 { font-size: 22px; }
  a.button { display: inline-block; padding: 10px 18px; border-radius: 8px;
             background: #667eea; color: #fff; text-decoration: none; }
  p.detail { color: #555; }
</style>`

const indexAnonymousHTML = `<!DOCTYPE html>
<html><head><title>Example App</title>` + pageStyle + `</head>
<body>
  <h1>Example App</h1>
  <p class="detail">You are not logged in.</p>
  <a class="button" href="/login">Log in</a>
</body></html>
`

const indexAuthenticatedHTML = `<!DOCTYPE html>
<html><head><title>Example App</title>` + pageStyle + `</head>
<body>
  <h1>Example App</h1>
  <p class="detail">Logged in as <strong>%s</strong>.</p>
  <p><a href="/api/profile">View profile</a> &middot; <a href="/logout">Log out</a></p>
</body></html>
`

// renderErrorPage writes a human-readable error page. Front-channel
// failures land here; back-channel failures are JSON.
func (a *App) renderErrorPage(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html><head><title>%s</title>`+pageStyle+`</head>
<body>
  <h1>%s</h1>
  <p class="detail">%s</p>
  <a class="button" href="/">Back</a>
</body></html>
`, html.EscapeString(title), html.EscapeString(title), html.EscapeString(detail))
}

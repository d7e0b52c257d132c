package authd

import (
	"bytes"
	"html/template"
	"net/http"
)

// consentTemplate is the HTML for the combined login and consent page served
// by GET /oauth/authorize. The form echoes the validated request parameters
// as hidden fields; the POST handler re-validates all of them, so a tampered
// form gains nothing.
const consentTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Sign in - {{.ClientName}}</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: linear-gradient(135deg, #1a1a2e 0%, #16213e 50%, #0f3460 100%);
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            color: #fff;
        }
        .card {
            background: rgba(255, 255, 255, 0.05);
            border: 1px solid rgba(255, 255, 255, 0.1);
            border-radius: 12px;
            padding: 2rem;
            width: 100%;
            max-width: 400px;
        }
        h1 {
            font-size: 1.4rem;
            font-weight: 600;
            margin-bottom: 0.5rem;
        }
        .client-name {
            color: #00d26a;
            font-weight: 500;
        }
        .subtitle {
            color: rgba(255, 255, 255, 0.7);
            font-size: 0.95rem;
            margin-bottom: 1.25rem;
        }
        .scopes {
            list-style: none;
            margin-bottom: 1.5rem;
        }
        .scopes li {
            padding: 0.4rem 0.6rem;
            margin-bottom: 0.3rem;
            background: rgba(255, 255, 255, 0.06);
            border-radius: 6px;
            font-size: 0.9rem;
        }
        .error {
            background: rgba(220, 53, 69, 0.2);
            border: 1px solid rgba(220, 53, 69, 0.5);
            border-radius: 6px;
            padding: 0.6rem 0.8rem;
            font-size: 0.9rem;
            margin-bottom: 1rem;
        }
        label {
            display: block;
            font-size: 0.85rem;
            color: rgba(255, 255, 255, 0.7);
            margin-bottom: 0.25rem;
        }
        input[type="email"], input[type="password"] {
            width: 100%;
            padding: 0.6rem 0.8rem;
            margin-bottom: 1rem;
            border: 1px solid rgba(255, 255, 255, 0.2);
            border-radius: 6px;
            background: rgba(0, 0, 0, 0.25);
            color: #fff;
            font-size: 1rem;
        }
        button {
            width: 100%;
            padding: 0.75rem;
            background: linear-gradient(135deg, #00d26a 0%, #00a855 100%);
            color: #fff;
            border: none;
            border-radius: 8px;
            font-size: 1rem;
            font-weight: 500;
            cursor: pointer;
        }
        button:hover {
            opacity: 0.9;
        }
    </style>
</head>
<body>
    <div class="card">
        <h1>Sign in to continue</h1>
        <p class="subtitle"><span class="client-name">{{.ClientName}}</span> is requesting access to:</p>
        <ul class="scopes">
            {{range .Scopes}}<li>{{.}}</li>{{end}}
        </ul>
        {{if .ErrorMessage}}<div class="error">{{.ErrorMessage}}</div>{{end}}
        <form method="POST" action="{{.Action}}">
            <input type="hidden" name="client_id" value="{{.ClientID}}">
            <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
            <input type="hidden" name="scope" value="{{.Scope}}">
            <input type="hidden" name="state" value="{{.State}}">
            <label for="email">Email</label>
            <input type="email" id="email" name="email" required autocomplete="username">
            <label for="password">Password</label>
            <input type="password" id="password" name="password" required autocomplete="current-password">
            <button type="submit">Sign in and authorize</button>
        </form>
    </div>
</body>
</html>`

// consentTmpl is parsed once at package initialization.
var consentTmpl = template.Must(template.New("consent").Parse(consentTemplate))

// consentData holds the template data for the login/consent page.
type consentData struct {
	ClientName   string
	Scopes       []string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string
	Action       string
	ErrorMessage string
}

// serveConsentPage renders the login/consent form. The template is executed
// into a buffer first so a render failure can still produce a clean 500.
func (h *Handler) serveConsentPage(w http.ResponseWriter, status int, data consentData) {
	data.Action = "/oauth/authorize"

	var buf bytes.Buffer
	if err := consentTmpl.Execute(&buf, data); err != nil {
		h.logger.Error("Failed to render consent page", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

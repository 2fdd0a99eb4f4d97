package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

var welcomeHTML = htmltemplate.Must(htmltemplate.New("welcome").Parse(`<!DOCTYPE html>
<html>
<body>
  <h1>Welcome, {{.Name}}!</h1>
  <p>Your account for <strong>{{.Email}}</strong> is ready.</p>
  <p>You can now sign in and start shopping.</p>
</body>
</html>
`))

var welcomeText = texttemplate.Must(texttemplate.New("welcome").Parse(`Welcome, {{.Name}}!

Your account for {{.Email}} is ready.
You can now sign in and start shopping.
`))

// WelcomeData fills the welcome template.
type WelcomeData struct {
	Name  string
	Email string
}

// WelcomeMessage renders the email sent after signup.
// User input is HTML-escaped in the HTML part.
func WelcomeMessage(data WelcomeData) (Message, error) {
	var html, text bytes.Buffer
	if err := welcomeHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render welcome html: %w", err)
	}
	if err := welcomeText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render welcome text: %w", err)
	}
	return Message{
		To:      data.Email,
		Subject: "Welcome to the store",
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

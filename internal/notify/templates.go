package notify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/modreview/internal/core"
)

const (
	reminderSubject  = "Action Required: Pending Module Reviews"
	provisionSubject = "Your Module Review System account"
)

// layout wraps body in the shared email chrome.
func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<html><body style="font-family: Arial, sans-serif; color: #333;">`+
			`<div style="max-width: 600px; margin: 0 auto; padding: 24px;">`+
			`<h2 style="color: #1a73e8; border-bottom: 2px solid #e0e0e0;">%s</h2>`, templ.EscapeString(title)); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `<p style="color: #757575; font-size: 13px;">This is an automated message. `+
			`If you have any questions, please contact the system administrator.</p></div></body></html>`)
		return err
	})
}

// loginButton renders the call to action linking to the system.
func loginButton(w io.Writer, loginURL, label string) error {
	if loginURL == "" {
		return nil
	}
	_, err := fmt.Fprintf(w, `<p style="text-align: center;"><a href="%s" style="background: #1a73e8; color: #fff; `+
		`padding: 12px 30px; border-radius: 25px; text-decoration: none;">%s</a></p>`,
		templ.EscapeString(string(templ.URL(loginURL))), templ.EscapeString(label))
	return err
}

// ReviewReminder lists modules whose review is still pending.
func ReviewReminder(modules []core.ModuleSummary, loginURL string) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<p>Dear Module Lead,</p>`)
		b.WriteString(`<p>This is a friendly reminder that the following module(s) are pending review:</p>`)
		for _, m := range modules {
			fmt.Fprintf(&b, `<div style="margin: 12px 0; padding: 12px; background: #f8f9fa; border-left: 4px solid #1a73e8;">`+
				`<div style="font-weight: 600; color: #1a73e8;">%s</div><div>%s</div></div>`,
				templ.EscapeString(m.ModuleCode), templ.EscapeString(m.ModuleName))
		}
		b.WriteString(`<p>Please complete the module review(s) at your earliest convenience.</p>`)
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
		return loginButton(w, loginURL, "Access Module Review System")
	})
	return layout("Module Review Reminder", body)
}

// ProvisionNotice tells a new module lead their account exists.
func ProvisionNotice(user core.UserRecord, loginURL string) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<p>Dear %s,</p><p>An account has been created for you as module lead. `+
			`Your username is <strong>%s</strong>. A password will be issued separately before you can sign in.</p>`,
			templ.EscapeString(user.Username), templ.EscapeString(user.Username)); err != nil {
			return err
		}
		return loginButton(w, loginURL, "Open Module Review System")
	})
	return layout("Welcome to the Module Review System", body)
}

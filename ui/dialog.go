package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// ForgotPasswordDialog tells the user where to recover their account.
type ForgotPasswordDialog struct {
	ctx    *Context
	email  string
	status string
}

// NewForgotPasswordDialog creates the overlay. email is whatever the user
// has typed so far and may be empty.
func NewForgotPasswordDialog(ctx *Context, email string) *ForgotPasswordDialog {
	return &ForgotPasswordDialog{
		ctx:   ctx,
		email: strings.TrimSpace(email),
	}
}

// Update handles a key press and reports whether the dialog should close.
func (d *ForgotPasswordDialog) Update(msg tea.KeyMsg) (closed bool) {
	switch msg.String() {
	case "esc", "enter", "q":
		return true

	case "c":
		url := d.ctx.Config.RecoveryURL
		if url == "" || d.ctx.ClipboardManager == nil {
			return false
		}
		if err := d.ctx.ClipboardManager.Copy(url, d.ctx.Config.ClipboardTimeout); err != nil {
			d.ctx.Logger.Debug("Recovery link not copied", zap.Error(err))
			d.status = "Could not copy the link."
			return false
		}
		d.status = "Link copied to clipboard."
	}
	return false
}

func (d *ForgotPasswordDialog) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Forgot your password?"))
	b.WriteString("\n")

	if url := d.ctx.Config.RecoveryURL; url != "" {
		b.WriteString("Reset it at:\n")
		b.WriteString(HighlightStyle.Render(url))
		b.WriteString("\n")
		if d.email != "" {
			b.WriteString("\nUse the address " + HighlightStyle.Render(d.email) + ".\n")
		}
	} else {
		b.WriteString("Contact your administrator to reset your password.\n")
	}

	if d.status != "" {
		b.WriteString("\n")
		b.WriteString(SuccessStyle.Render(d.status))
		b.WriteString("\n")
	}

	help := "Esc/Enter: close"
	if d.ctx.Config.RecoveryURL != "" {
		help = "c: copy link • " + help
	}
	b.WriteString(HelpStyle.Render(help))

	return DialogStyle.Render(b.String())
}

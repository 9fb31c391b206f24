package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"octave/identity"
)

// HomeScreen replaces the sign-in screen once a user is signed in.
type HomeScreen struct {
	ctx  *Context
	user identity.Identity
}

// NewHomeScreen creates the home screen for the user held by the store.
func NewHomeScreen(ctx *Context) *HomeScreen {
	user, _ := ctx.Store.Current()
	return &HomeScreen{ctx: ctx, user: user}
}

func (s *HomeScreen) Init() tea.Cmd {
	return nil
}

// User returns the signed-in identity.
func (s *HomeScreen) User() identity.Identity {
	return s.user
}

func (s *HomeScreen) Update(msg tea.Msg) (Screen, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "q", "esc":
			return s, tea.Quit
		}
	}
	return s, nil
}

func (s *HomeScreen) View() string {
	var b strings.Builder

	name := s.user.DisplayName
	if name == "" {
		name = s.user.Email
	}
	b.WriteString(TitleStyle.Render("Octave"))
	b.WriteString("\n\n")
	b.WriteString(SuccessStyle.Render(fmt.Sprintf("✓ Welcome, %s", name)))
	b.WriteString("\n\n")
	b.WriteString(LabelStyle.Render("Email") + s.user.Email + "\n")
	if s.user.PhotoURL != "" {
		b.WriteString(LabelStyle.Render("Profile picture") + s.user.PhotoURL + "\n")
	}
	b.WriteString(LabelStyle.Render("User ID") + s.user.UID + "\n")
	b.WriteString(HelpStyle.Render("q: quit"))

	return b.String()
}
